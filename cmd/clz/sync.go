package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/popclozet/popclozet/internal/queue"
	"github.com/popclozet/popclozet/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain queued offline mutations to the backend",
	Long: `Replay every pending mutation in the offline queue against the backend.

Mutations replay oldest first. Each confirmed mutation is marked synced and
pruned; mutations that fail stay queued and retry on the next sync. A sync
that is already in flight is not started twice.`,
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

		q := queue.New(st, newLogger("[queue] "))
		d := syncer.New(q, rc, newLogger("[sync] "))

		fmt.Printf("Draining offline queue...\n")
		summary, err := d.Drain(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Sync complete in %v\n", summary.Duration.Round(time.Millisecond))
		fmt.Printf("   Attempted: %d\n", summary.Attempted)
		fmt.Printf("   Confirmed: %d\n", summary.Confirmed)
		fmt.Printf("   Pruned:    %d\n", summary.Pruned)
		if summary.Confirmed < summary.Attempted {
			fmt.Printf("   %d mutations still pending, will retry on next sync\n",
				summary.Attempted-summary.Confirmed)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
