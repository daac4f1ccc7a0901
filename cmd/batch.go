package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mohammad-safakhou/foresight/config"
	"github.com/mohammad-safakhou/foresight/internal/forecast"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/spf13/cobra"
)

func batchCMD() *cobra.Command {
	var cfgPath string
	var questionsFile string
	var workers int
	var outputPrefix string
	var retrievalIndex int

	var cmd = &cobra.Command{
		Use:   "batch",
		Short: "Forecast a file of questions concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(questionsFile)
			if err != nil {
				return err
			}
			var questions []models.Question
			if err := json.Unmarshal(raw, &questions); err != nil {
				return fmt.Errorf("parsing %s: %w", questionsFile, err)
			}
			if len(questions) == 0 {
				return fmt.Errorf("%s contains no questions", questionsFile)
			}

			runCfg, err := cfg.PipelineConfig(retrievalIndex)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pipeline, cleanup, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			report := pipeline.RunBatch(ctx, questions, runCfg, forecast.BatchConfig{
				Workers:      workers,
				OutputPrefix: outputPrefix,
			})
			fmt.Printf("succeeded=%d failed=%d skipped=%d\n", report.Succeeded, report.Failed, report.Skipped)
			if report.Scored > 0 {
				fmt.Printf("mean brier over %d resolved questions: %.4f\n", report.Scored, report.MeanBrier)
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d questions failed", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&questionsFile, "file", "", "questions JSON file (array of questions)")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent question workers")
	cmd.Flags().StringVar(&outputPrefix, "output-prefix", "", "namespace for idempotence keys")
	cmd.Flags().IntVar(&retrievalIndex, "retrieval-index", 0, "which retrieval round this run is")
	_ = cmd.MarkFlagRequired("file")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
