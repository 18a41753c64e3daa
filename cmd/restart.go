package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinity-cloud/drost/internal/config"
)

func restartCmd() *cobra.Command {
	var reason string
	var dryRun bool
	var addr string

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Request a gateway restart via the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := config.Load(resolveConfigPath())
				if err != nil {
					return fmt.Errorf("config load: %w", err)
				}
				addr = cfg.Control.Addr
			}
			return controlPost(addr, "/control/v1/restart", map[string]any{
				"intent": "manual",
				"reason": reason,
				"dryRun": dryRun,
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual restart", "reason recorded in restart history")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the restart budget without restarting")
	cmd.Flags().StringVar(&addr, "addr", "", "control API address (default: from config)")
	return cmd
}

func controlPost(addr, path string, body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := "http://" + addr + path
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := os.Getenv("DROST_CONTROL_ADMIN_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("control api request: %w", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("control api %s: %s", resp.Status, out)
	}
	fmt.Println(string(out))
	return nil
}
