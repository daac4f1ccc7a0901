package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/foresight/config"
	"github.com/mohammad-safakhou/foresight/internal/store"
	"github.com/spf13/cobra"
)

func searchCMD() *cobra.Command {
	var cfgPath string
	var limit int

	var cmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Search the persistent article index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.IndexPath == "" {
				return fmt.Errorf("no persistent index configured (storage.index_path)")
			}
			index, err := store.NewArticleIndex(cfg.Storage.IndexPath)
			if err != nil {
				return err
			}
			defer index.Close()

			hits, err := index.Search(context.Background(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%8.4f  %s\n", h.Score, h.Link)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum hits to print")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
