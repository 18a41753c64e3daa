package cmd

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinity-cloud/drost/internal/config"
	"github.com/trinity-cloud/drost/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("drost doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Providers:")
	if len(cfg.Providers.List) == 0 {
		fmt.Println("    (none configured)")
	}
	for id, p := range cfg.Providers.List {
		label := id
		if id == cfg.Providers.Default {
			label += " (default)"
		}
		checkProvider(label, p.APIKey)
	}

	fmt.Println()
	fmt.Println("  Routes:")
	if len(cfg.Routes) == 0 {
		fmt.Println("    (none configured, sessions use the default provider)")
	}
	for name, route := range cfg.Routes {
		fmt.Printf("    %-16s primary=%s fallbacks=%v\n", name+":", route.PrimaryProviderID, route.FallbackProviderIDs)
	}

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("docker")
	checkBinary("curl")
	checkBinary("git")

	fmt.Println()
	ws := config.ExpandHome(cfg.Gateway.WorkspaceDir)
	fmt.Printf("  Workspace:      %s", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (NOT FOUND, created on gateway start)")
	} else {
		fmt.Println(" (OK)")
	}

	sessionsDir := config.ExpandHome(cfg.Sessions.Storage)
	fmt.Printf("  Session store:  %s", sessionsDir)
	if _, err := os.Stat(sessionsDir); err != nil {
		fmt.Println(" (NOT FOUND, created on gateway start)")
	} else {
		fmt.Println(" (OK)")
	}

	auditPath := config.ExpandHome(cfg.Control.AuditFallbackPath)
	if cfg.Control.AuditPostgresDSN != "" {
		fmt.Println("  Audit sink:     postgres (DSN set)")
	} else {
		fmt.Printf("  Audit sink:     file (%s)\n", auditPath)
	}

	fmt.Println()
	fmt.Println("  Control API:")
	checkTCPReachable(cfg.Control.Addr)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(name, apiKey string) {
	if apiKey != "" {
		masked := apiKey
		if len(masked) > 8 {
			masked = masked[:4] + strings.Repeat("*", len(masked)-8) + masked[len(masked)-4:]
		} else {
			masked = strings.Repeat("*", len(masked))
		}
		fmt.Printf("    %-20s %s\n", name+":", masked)
	} else {
		fmt.Printf("    %-20s (not configured)\n", name+":")
	}
}

// checkTCPReachable reports whether a gateway is already listening on addr,
// which is informational only — doctor never starts or stops the gateway.
func checkTCPReachable(addr string) {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		fmt.Printf("    %-12s %s (not running)\n", "Addr:", addr)
		return
	}
	conn.Close()
	fmt.Printf("    %-12s %s (gateway is listening)\n", "Addr:", addr)
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
