package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/popclozet/popclozet/internal/dashboard"
	"github.com/popclozet/popclozet/internal/localdb"
	"github.com/popclozet/popclozet/internal/netmon"
	"github.com/popclozet/popclozet/internal/queue"
	"github.com/popclozet/popclozet/internal/syncer"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start real-time WebSocket dashboard for sync monitoring",
	Long: `Start a WebSocket dashboard server for monitoring the sync engine.

The dashboard broadcasts sync activity to connected clients:
- drain_complete: a queue drain finished (attempted/confirmed/pruned)
- connectivity: backend reachability changed
- queue_depth: pending offline mutation count
- cache_stats: local store entry counts

When a backend is configured, the dashboard also probes reachability and
drains the queue on reconnect, so it doubles as a lightweight sync daemon.

Example usage:
  clz dashboard                  # Start on default port 8080
  clz dashboard --port 9000      # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.DashboardPort
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: newLogger("[dashboard] "),
		})
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// With a backend configured, feed the dashboard live sync activity.
		if rc := backendClient(); rc != nil {
			st, err := openLocalDB()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer st.Close()

			q := queue.New(st, newLogger("[queue] "))
			monitor := netmon.New(false)
			drainer := syncer.New(q, rc, newLogger("[sync] "))
			drainer.OnSummary = func(s syncer.Summary) {
				server.BroadcastDrain(dashboard.DrainCompleteData{
					Attempted: s.Attempted,
					Confirmed: s.Confirmed,
					Pruned:    s.Pruned,
					Duration:  s.Duration,
				})
				if pending, err := q.Depth(ctx); err == nil {
					server.BroadcastQueueDepth(pending)
				}
			}
			unsubscribe := drainer.Watch(ctx, monitor)
			defer unsubscribe()

			defer monitor.Subscribe(func(online bool) {
				server.BroadcastConnectivity(online)
			})()

			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						probeCtx, probeCancel := context.WithTimeout(ctx, 10*time.Second)
						err := rc.Ping(probeCtx)
						probeCancel()
						monitor.Set(err == nil)

						stats := dashboard.CacheStatsData{Partitions: map[string]int{}}
						for _, p := range []string{
							localdb.PartitionProducts,
							localdb.PartitionCart,
							localdb.PartitionWishlist,
							localdb.PartitionSOPs,
						} {
							n, err := st.Count(ctx, p)
							if err != nil {
								continue
							}
							stats.Partitions[p] = n
							stats.Total += n
						}
						server.BroadcastCacheStats(stats)
					}
				}
			}()
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: config dashboard_port)")
	rootCmd.AddCommand(dashboardCmd)
}
