package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stage with the web control surface",
	Long: `Serve keeps the stage idle and runs the polling loop, the web control
surface and, if configured, the serial telemetry link until interrupted.

Endpoints: GET /telemetry, POST /start, /stop, /reset, /settings,
GET /panel, POST /panel/{up,down,select,emergency},
GET /status/stream (SSE), GET /ws (websocket telemetry), GET /.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides web.addr")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.Web.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	s, err := newStage(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	s.startBackground(ctx, cfg)
	s.goRun(ctx, "scan loop", s.loop.Run)
	go broadcaster.WatchStatus(ctx, s.shared, cfg.PollInterval()*10)

	srv := web.NewServer(addr, broadcaster, s.shared)
	srv.Handlers().PushInterval = 100 * time.Millisecond

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(ctx) }()

	select {
	case err = <-srvErr:
	case err = <-s.errs:
	}
	cancel()
	s.wait()
	return err
}
