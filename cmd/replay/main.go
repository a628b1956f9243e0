package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trafficwatch/backend/internal/config"
	"github.com/trafficwatch/backend/internal/logger"
	"github.com/trafficwatch/backend/internal/replay"
)

var (
	csvFile   string
	targetURL string
	delay     time.Duration
	limit     int
	timeout   time.Duration
	logLevel  string
	logFormat string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:          "trafficwatch-replay",
		Short:        "Replay recorded traffic from a CSV file into a trafficwatch server",
		SilenceUsage: true,
		RunE:         runReplay,
	}
	rootCmd.Flags().StringVar(&csvFile, "file", "ip_addresses.csv", "CSV file with ip, latitude, longitude, timestamp, suspicious columns")
	rootCmd.Flags().StringVar(&targetURL, "url", replay.DefaultURL, "Ingest endpoint to post records to")
	rootCmd.Flags().DurationVar(&delay, "delay", replay.DefaultDelay, "Pause between records")
	rootCmd.Flags().IntVar(&limit, "limit", 0, "Send at most this many records (0 = all)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request HTTP timeout")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "console", "Log format (console or json)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runReplay(_ *cobra.Command, _ []string) error {
	logger.Setup(config.Logging{Level: logLevel, Format: logFormat, Service: "replay"})

	records, err := replay.LoadFile(csvFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender := replay.NewSender(replay.Options{
		URL:    targetURL,
		Delay:  delay,
		Limit:  limit,
		Client: &http.Client{Timeout: timeout},
	})

	res, err := sender.Run(ctx, records)
	if errors.Is(err, context.Canceled) {
		log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("replay interrupted")
		return nil
	}
	return err
}
