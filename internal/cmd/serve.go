package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/tenex-go/tenexcore/internal/responses"
)

var serveAddr string

// serveCmd is the long-running daemon frontend (spec 1): it boots a
// session, starts the bunker listener if logged in, and serves
// ResponsesServer until signaled.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ResponsesServer HTTP/SSE surface until signaled",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A manual reader gives internal/diag's counters a real SDK-backed
	// MeterProvider instead of the global no-op default. Nothing pulls
	// from it yet; an operator wiring OTLP export registers their own
	// reader/provider ahead of this call instead.
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	otel.SetMeterProvider(meterProvider)
	defer meterProvider.Shutdown(context.Background())

	s, err := openSession(ctx)
	if err != nil {
		return daemonUnreachableErr(err)
	}
	defer s.close()

	if s.facade.LoggedIn() {
		if err := s.facade.StartBunker(ctx); err != nil {
			return invalidArgErr(err)
		}
		defer s.facade.StopBunker()
	}

	addr := strings.TrimSpace(serveAddr)
	srv := responses.NewServer(addr, s.facade, s.proj, s.store)

	if err := srv.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("responses server: %w", err)
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: 127.0.0.1:3000)")
	rootCmd.AddCommand(serveCmd)
}
