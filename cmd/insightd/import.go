package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/database"
	"github.com/davidleathers/barangay-insights/internal/service/analytics"
)

func newImportCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load monthly observations from a JSON file into the database",
		Long: `Reads a JSON array of observations such as
[{"metricType":"requests","year":2024,"month":1,"value":42}]
and upserts them. Existing (metric, year, month) rows are replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			obs, err := readObservations(file)
			if err != nil {
				return err
			}
			if a.cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}

			pool, err := database.Connect(cmd.Context(), a.cfg.Database, a.zap)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := analytics.NewService(database.NewMetricRepository(pool, a.zap), a.logger)
			n, err := svc.Import(cmd.Context(), obs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d observations\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the observations JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readObservations(path string) ([]metric.Observation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obs []metric.Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return obs, nil
}
