//go:build !tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/trinity-cloud/drost/internal/config"
)

// startTsnetListener is the no-op stand-in used by default builds. Build
// with `-tags tsnet` to get the real tailnet listener in gateway_tsnet.go.
func startTsnetListener(ctx context.Context, cfg config.TailscaleConfig, mux http.Handler) (func(), error) {
	if cfg.Hostname != "" {
		slog.Warn("tsnet.disabled", "hint", "rebuild with -tags tsnet to enable the tailnet listener")
	}
	return nil, nil
}
