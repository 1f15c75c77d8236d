package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/popclozet/popclozet/internal/netmon"
	"github.com/popclozet/popclozet/internal/queue"
	"github.com/popclozet/popclozet/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan <qr-data>",
	Short: "Record a QR code scan",
	Long: `Record a QR code scan event.

When the backend is reachable the scan is pushed directly; otherwise (or when
the push fails) it queues locally and drains on the next sync. A scan is
never lost: if it can't reach the backend and can't be queued, the command
fails loudly.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		productID, _ := cmd.Flags().GetString("product")

		st, err := openLocalDB()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		rc := backendClient()
		q := queue.New(st, newLogger("[queue] "))

		// Probe once so the tracker sees real connectivity.
		online := false
		if rc != nil {
			online = rc.Ping(cmd.Context()) == nil
		}

		tracker := scan.New(rc, q, netmon.New(online), newLogger("[scan] "))
		tracker.UserAgent = "clz/cli"

		logged, err := tracker.LogScan(cmd.Context(), args[0], productID, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error recording scan: %v\n", err)
			os.Exit(1)
		}

		if logged.SyncedAt != nil {
			fmt.Printf("Scan %s recorded remotely\n", logged.ID)
		} else {
			fmt.Printf("Scan %s queued for sync\n", logged.ID)
		}
	},
}

func init() {
	scanCmd.Flags().String("product", "", "Product id the QR code resolves to")
	rootCmd.AddCommand(scanCmd)
}
