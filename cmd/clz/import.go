package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/popclozet/popclozet/internal/catalog"
	"github.com/popclozet/popclozet/internal/daemon"
	"github.com/popclozet/popclozet/internal/netmon"
)

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import product JSON files into the local mirror",
	Long: `Import every product JSON file from a drop directory.

Each file holds one product. Valid products land in the local mirror and,
when a backend is configured, are pushed upstream as well. Invalid files are
skipped with a warning. Without an argument the configured imports directory
is used.

This is the one-shot form of what 'clz daemon' does continuously.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := cfg.ImportsDir
		if len(args) == 1 {
			dir = args[0]
		}

		st, err := openLocalDB()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		rc := backendClient()
		cache := catalog.New(st, rc, newLogger("[catalog] "))

		dcfg := daemon.DefaultConfig()
		dcfg.ImportsDir = dir
		dcfg.Logger = newLogger("[import] ")

		// Assume online for a one-shot import; push failures only warn.
		d, err := daemon.New(cache, rc, netmon.New(true), dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		n, err := d.ImportAll(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during import: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d products from %s\n", n, dir)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
