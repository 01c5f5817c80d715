package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/config"
	"github.com/satindergrewal/mixdesk/internal/server"
	"github.com/satindergrewal/mixdesk/internal/session"
	"github.com/satindergrewal/mixdesk/internal/stream"
	"github.com/satindergrewal/mixdesk/internal/transport"
)

const tickInterval = 20 * time.Millisecond

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	var noStore bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editing server with live preview",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(runCtx, cfg, ctx.log(), !noStore)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Override the listen address")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Run without the session database")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, withStore bool) error {
	log.Info("mixdesk starting up", zap.String("listen", cfg.Server.Listen))

	ed := newEngine(cfg, log)

	pipeline := stream.NewPipeline(ed.Library(), log.Named("pipeline"))
	go pipeline.Run(ctx)

	broadcaster := stream.NewBroadcaster(cfg.Audio.ListenerBuffer, log.Named("broadcast"))
	go broadcaster.Run(ctx, pipeline.Frames())

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, cfg.Audio.OpusBitrate, cfg.Server.ICEServers, log.Named("webrtc"))
	defer webrtcHandler.Close()

	var capture transport.Capture
	if cfg.Audio.CaptureInput != "" {
		capture = &audio.FFmpegCapture{
			Path:       cfg.Audio.FFmpegPath,
			Format:     cfg.Audio.CaptureFormat,
			Input:      cfg.Audio.CaptureInput,
			SampleRate: cfg.Audio.ExportSampleRate,
		}
	} else {
		log.Info("capture input not configured, recording disabled")
	}
	tr := transport.New(ed, pipeline, transport.Options{
		Capture: capture,
		Logger:  log.Named("transport"),
	})
	go func() {
		if err := tr.Run(ctx, tickInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("transport loop stopped", zap.Error(err))
		}
	}()

	exporter, closeExport, err := newExporter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeExport()

	var store *session.Store
	if withStore {
		store, err = session.Open(cfg.Session.Path, cfg.Session.LockPath, log.Named("sessions"))
		if err != nil {
			return err
		}
		defer store.Close()
	}

	srv := server.New(server.Options{
		Editor:    ed,
		Transport: tr,
		Exporter:  exporter,
		Store:     store,
		Stream:    stream.NewHTTPHandler(broadcaster, cfg.Audio.FFmpegPath, cfg.Audio.MP3Bitrate, log.Named("http-stream")),
		Offer:     webrtcHandler,
		Listeners: func() int {
			return broadcaster.ListenerCount() + webrtcHandler.PeerCount()
		},
		Snap:   cfg.Editor.Snap,
		Logger: log.Named("server"),
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tr.Stop(shutdownCtx); err != nil {
			log.Warn("stop transport", zap.Error(err))
		}
		// preview streams never finish on their own
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
		}
	}()

	log.Info("mixdesk live", zap.String("addr", cfg.Server.Listen))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
