package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/popclozet/popclozet/internal/catalog"
	"github.com/popclozet/popclozet/internal/daemon"
	"github.com/popclozet/popclozet/internal/netmon"
	"github.com/popclozet/popclozet/internal/queue"
	"github.com/popclozet/popclozet/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the sync daemon (foreground)",
	Long: `Start the PopClozet sync daemon in foreground mode.

The daemon will:
  1. Watch the imports directory for product JSON drops
  2. Probe backend reachability and track connectivity
  3. Drain the offline queue on every reconnect
  4. Evict stale product mirror entries periodically`,
	Run: func(cmd *cobra.Command, args []string) {
		rc := backendClient()
		if rc == nil {
			fmt.Fprintf(os.Stderr, "Error: no backend configured (set backend.url in clz.yaml or CLZ_BACKEND_URL)\n")
			os.Exit(1)
		}

		st, err := openLocalDB()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		cache := catalog.New(st, rc, newLogger("[catalog] "))
		q := queue.New(st, newLogger("[queue] "))
		monitor := netmon.New(false)
		drainer := syncer.New(q, rc, newLogger("[sync] "))

		dcfg := daemon.DefaultConfig()
		dcfg.ImportsDir = cfg.ImportsDir
		dcfg.CacheMaxAge = cfg.CacheMaxAge
		dcfg.Probe = rc.Ping
		dcfg.Logger = newLogger("[daemon] ")

		d, err := daemon.New(cache, rc, monitor, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		unsubscribe := drainer.Watch(ctx, monitor)
		defer unsubscribe()

		fmt.Printf("Starting sync daemon...\n")
		fmt.Printf("   Imports dir: %s\n", cfg.ImportsDir)
		fmt.Printf("   Store: %s\n", cfg.DBPath)
		fmt.Printf("   Backend: %s\n", cfg.Backend.URL)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		// Start daemon (this blocks)
		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
