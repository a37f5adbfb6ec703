package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nugulmap/markers/internal/config"
	"github.com/nugulmap/markers/internal/ingest"
	"github.com/nugulmap/markers/internal/store"
	"github.com/nugulmap/markers/pkg/geocode"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest DIR",
	Short: "Load every CSV file in DIR into the markers collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		_, err = runIngest(ctx, st, cfg, args[0])
		return err
	},
}

func runIngest(ctx context.Context, st store.Store, c *config.Config, dir string) (ingest.Summary, error) {
	var geocoder geocode.Client
	if c.Ingest.Geocode {
		g, err := geocode.NewKakaoClient(c.Geocode.KakaoAPIKey,
			geocode.WithBaseURL(c.Geocode.BaseURL),
			geocode.WithRateLimit(c.Geocode.RateLimit),
		)
		if err != nil {
			return ingest.Summary{}, eris.Wrap(err, "init geocoder")
		}
		geocoder = g
	}

	driver := ingest.NewDriver(st, ingest.NewCleaner(geocoder), c.Ingest.FallbackEncodings)
	sum, err := driver.IngestDir(ctx, dir)
	if err != nil {
		return sum, err
	}

	total, err := st.Count(ctx)
	if err != nil {
		return sum, eris.Wrap(err, "count markers")
	}
	zap.L().Info("ingest complete",
		zap.String("dir", dir),
		zap.Int("files", sum.Files),
		zap.Int("files_failed", sum.FilesFailed),
		zap.Int("rows", sum.Rows),
		zap.Int("created", sum.Created),
		zap.Int("skipped", sum.Skipped),
		zap.Int("rows_failed", sum.RowsFailed),
		zap.Int("geocoded", sum.Geocoded),
		zap.Int("total_markers", total),
	)
	return sum, nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
