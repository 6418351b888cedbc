// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

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

	"github.com/ZSC714725/dropconvert/internal/api"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	serveBind    string
	serveFFmpeg  string
	serveFFprobe string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the conversion queue over HTTP.

Clients post dropped paths to /api/v1/items, start and cancel runs with
/api/v1/run/command and follow state changes on the /api/v1/events websocket.
Set server.jwt_secret in the config to require an HS256 bearer token.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "bind address (overrides config)")
	serveCmd.Flags().StringVar(&serveFFmpeg, "ffmpeg", "", "ffmpeg binary path (overrides config)")
	serveCmd.Flags().StringVar(&serveFFprobe, "ffprobe", "", "ffprobe binary path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveBind != "" {
		cfg.Server.Bind = serveBind
	}
	if serveFFmpeg != "" {
		cfg.FFmpeg.Path = serveFFmpeg
	}
	if serveFFprobe != "" {
		cfg.FFmpeg.ProbePath = serveFFprobe
	}

	log := newLogger()

	a, err := newApp(cfg, nil, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a missing ffmpeg is reported per file, the server still starts
	if err := a.ffmpeg.ReloadSkills(ctx); err != nil {
		log.Error("ffmpeg check: %v", err)
	}

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(api.Config{
		Manager:  a.manager,
		FFmpeg:   a.ffmpeg,
		Settings: a.settings,
		Hub:      a.hub,
		Codec:    cfg.Convert.Codec,
		Logger:   log,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret: cfg.Server.JWTSecret,
		AccessLog: true,
	})

	srv := &http.Server{Addr: cfg.Server.Bind, Handler: router}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	log.Info("listening on %s (auth %s)", cfg.Server.Bind, onOff(cfg.Server.JWTSecret != ""))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
