package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinity-cloud/drost/internal/config"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage sessions via the control API",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every known session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withControlAddr(&addr, func() error {
				return controlGet(addr, "/control/v1/sessions")
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "control API address (default: from config)")
	return cmd
}

func sessionsShowCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "show <sessionId>",
		Short: "Hydrate and print one session's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withControlAddr(&addr, func() error {
				return controlGet(addr, "/control/v1/sessions/"+args[0])
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "control API address (default: from config)")
	return cmd
}

func sessionsDeleteCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "delete <sessionId>",
		Short: "Delete a session's canonical record (transcripts survive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withControlAddr(&addr, func() error {
				return controlDelete(addr, "/control/v1/sessions/"+args[0])
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "control API address (default: from config)")
	return cmd
}

func withControlAddr(addr *string, fn func() error) error {
	if *addr == "" {
		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return fmt.Errorf("config load: %w", err)
		}
		*addr = cfg.Control.Addr
	}
	return fn()
}

func controlGet(addr, path string) error {
	return controlDo(http.MethodGet, addr, path)
}

func controlDelete(addr, path string) error {
	return controlDo(http.MethodDelete, addr, path)
}

func controlDo(method, addr, path string) error {
	url := "http://" + addr + path
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	if token := os.Getenv("DROST_CONTROL_ADMIN_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if token := os.Getenv("DROST_CONTROL_READONLY_TOKEN"); token != "" {
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
