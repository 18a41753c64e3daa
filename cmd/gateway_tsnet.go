//go:build tsnet

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"tailscale.com/tsnet"

	"github.com/trinity-cloud/drost/internal/config"
)

// startTsnetListener serves mux over a private tailnet via tsnet, in
// addition to the Control API's normal listener on cfg.Addr. Enabled only
// in binaries built with `-tags tsnet`; a zero Hostname disables it even
// in a tsnet-tagged build.
func startTsnetListener(ctx context.Context, cfg config.TailscaleConfig, mux http.Handler) (func(), error) {
	if cfg.Hostname == "" {
		return nil, nil
	}

	srv := &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       cfg.StateDir,
		AuthKey:   cfg.AuthKey,
		Ephemeral: cfg.Ephemeral,
	}
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("tsnet start: %w", err)
	}

	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("tsnet listen: %w", err)
	}

	httpSrv := &http.Server{Handler: mux}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("tsnet.serve_failed", "error", err)
		}
	}()

	slog.Info("tsnet.listening", "hostname", cfg.Hostname)
	return func() {
		_ = httpSrv.Close()
		_ = srv.Close()
	}, nil
}
