package analyticsapi

import (
	"context"

	"github.com/davidleathers/barangay-insights/internal/service/analytics"
	"github.com/davidleathers/barangay-insights/internal/service/dashboard"
)

// Local serves years straight from an analytics service in the same
// process, skipping the HTTP hop.
type Local struct {
	svc *analytics.Service
}

func NewLocal(svc *analytics.Service) *Local {
	return &Local{svc: svc}
}

func (l *Local) FetchYear(ctx context.Context, year int) (dashboard.YearPage, error) {
	res, err := l.svc.Monthly(ctx, analytics.MonthlyRequest{Metric: analytics.MetricAll, Year: year})
	if err != nil {
		return dashboard.YearPage{}, err
	}
	return dashboard.YearPage{Records: res.Records, AvailableYears: res.AvailableYears}, nil
}

var (
	_ dashboard.Fetcher = (*Client)(nil)
	_ dashboard.Fetcher = (*Local)(nil)
)
