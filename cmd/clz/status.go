package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/popclozet/popclozet/internal/localdb"
	"github.com/popclozet/popclozet/internal/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store status",
	Long: `Display the current status of the local store.

Shows:
  - Store file location and size
  - Entry counts per partition
  - Pending offline mutations`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		info, err := os.Stat(cfg.DBPath)
		if os.IsNotExist(err) {
			fmt.Printf("\nLocal store not initialized\n")
			fmt.Printf("   Run any clz command that touches data to create it\n\n")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking store: %v\n", err)
			os.Exit(1)
		}

		st, err := openLocalDB()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		partitions := []string{
			localdb.PartitionProducts,
			localdb.PartitionCart,
			localdb.PartitionWishlist,
			localdb.PartitionPreferences,
			localdb.PartitionSOPs,
		}

		size := info.Size()
		sizeStr := fmt.Sprintf("%d bytes", size)
		if size > 1024*1024 {
			sizeStr = fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
		} else if size > 1024 {
			sizeStr = fmt.Sprintf("%.1f KB", float64(size)/1024)
		}

		fmt.Printf("\nLocal Store Status\n\n")
		fmt.Printf("Location: %s\n", cfg.DBPath)
		fmt.Printf("Size: %s\n", sizeStr)
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		fmt.Println()

		total := 0
		for _, p := range partitions {
			n, err := st.Count(ctx, p)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error counting %s: %v\n", p, err)
				os.Exit(1)
			}
			fmt.Printf("%-12s %d\n", p+":", n)
			total += n
		}
		fmt.Printf("%-12s %d\n", "total:", total)

		q := queue.New(st, newLogger("[queue] "))
		pending, err := q.Depth(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue depth: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nPending mutations: %d\n", pending)
		if pending > 0 {
			fmt.Printf("   Run 'clz sync' to drain them\n")
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
