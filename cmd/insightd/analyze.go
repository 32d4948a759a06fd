package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/service/analysis"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var metricName, file string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a JSON series file with the configured model",
		Long: `Reads a JSON array of monthly points, for example
[{"month":1,"requests":10,"requestsPredicted":11}], asks the configured
model for a trend analysis and prints the validated result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metricType, err := metric.ParseType(metricName)
			if err != nil {
				return err
			}
			series, err := readSeries(file)
			if err != nil {
				return err
			}

			model, err := a.newModel(cmd.Context(), a.cfg.LLM, a.zap)
			if err != nil {
				return fmt.Errorf("create model: %w", err)
			}
			coord := analysis.NewCoordinator(model,
				analysis.WithModelTimeout(a.cfg.LLM.Timeout),
				analysis.WithLogger(a.logger))
			defer coord.Close()

			result, err := coord.Analyze(cmd.Context(), metricType, series)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&metricName, "metric", "", "metric type of the series")
	cmd.Flags().StringVar(&file, "file", "", "path to the series JSON file")
	_ = cmd.MarkFlagRequired("metric")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readSeries(path string) ([]metric.SeriesPoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var series []metric.SeriesPoint
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%s holds no points", path)
	}
	return series, nil
}
