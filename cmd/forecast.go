package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mohammad-safakhou/foresight/config"
	"github.com/mohammad-safakhou/foresight/internal/models"
	"github.com/spf13/cobra"
)

func forecastCMD() *cobra.Command {
	var cfgPath string
	var questionFile string
	var title string
	var background string
	var resolution string
	var dateBegin string
	var dateEnd string
	var retrievalIndex int

	var cmd = &cobra.Command{
		Use:   "forecast",
		Short: "Run the full pipeline for a single question",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			var q models.Question
			if questionFile != "" {
				raw, err := os.ReadFile(questionFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &q); err != nil {
					return fmt.Errorf("parsing %s: %w", questionFile, err)
				}
			} else {
				if title == "" {
					return fmt.Errorf("either --file or --title is required")
				}
				q = models.Question{Title: title, Background: background, ResolutionCriteria: resolution}
				if dateBegin != "" {
					if q.DateBegin, err = time.Parse("2006-01-02", dateBegin); err != nil {
						return fmt.Errorf("parsing --date-begin: %w", err)
					}
				}
				if dateEnd != "" {
					if q.DateEnd, err = time.Parse("2006-01-02", dateEnd); err != nil {
						return fmt.Errorf("parsing --date-end: %w", err)
					}
				}
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

			rec, err := pipeline.Run(ctx, q, runCfg)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&questionFile, "file", "", "question JSON file")
	cmd.Flags().StringVar(&title, "title", "", "question title")
	cmd.Flags().StringVar(&background, "background", "", "question background, may embed source URLs")
	cmd.Flags().StringVar(&resolution, "resolution-criteria", "", "how the question resolves")
	cmd.Flags().StringVar(&dateBegin, "date-begin", "", "retrieval window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateEnd, "date-end", "", "retrieval window end (YYYY-MM-DD)")
	cmd.Flags().IntVar(&retrievalIndex, "retrieval-index", 0, "which retrieval round this run is")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
