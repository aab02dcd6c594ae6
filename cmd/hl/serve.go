package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"heatline/internal/app"
	"heatline/internal/blob"
	"heatline/internal/metrics"
	"heatline/internal/notify"
	"heatline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath, publicURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			ctx := cmd.Context()
			e, conn, err := app.Open(ctx, appOptions())
			if err != nil {
				return err
			}
			defer conn.Close()
			if !cmd.Flags().Changed("addr") && e.Config.Server.Addr != "" {
				addr = e.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && e.Config.Server.BasePath != "" {
				basePath = e.Config.Server.BasePath
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			e.Metrics = metrics.NewRecorder(reg)
			e.Notify = notify.LogNotifier{Logger: logger}

			filesDir := ""
			if fs, ok := e.Blobs.(*blob.FileStore); ok {
				filesDir = fs.Dir
				if fs.BaseURL == "" {
					if publicURL == "" {
						publicURL = "http://" + addr
					}
					fs.BaseURL = strings.TrimRight(publicURL, "/") + "/files"
				}
			}

			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Registry: reg,
				Logger:   logger,
				FilesDir: filesDir,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving", "addr", addr, "base_path", basePath, "storage", e.Config.Storage.Driver, "blobs", e.Config.Blobs.Backend)
			fmt.Printf("Serving Heatline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "external URL of this server, used for document links")
	return cmd
}
