// Command clz is the PopClozet offline sync engine CLI.
//
// It manages the local product cache and the offline mutation queue, drains
// queued mutations to the backend, runs the product intake daemon, and serves
// the real-time sync dashboard.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/popclozet/popclozet/internal/config"
	"github.com/popclozet/popclozet/internal/localdb"
	"github.com/popclozet/popclozet/internal/remote"
	"github.com/popclozet/popclozet/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clz",
	Short: "PopClozet offline sync engine",
	Long: `clz manages PopClozet's local-first storefront data.

The local store is a SQLite database holding the product mirror, cart,
wishlist, preferences, and the offline mutation queue. Reads prefer the
backend and fall back to the mirror; writes made offline queue locally and
drain to the backend on reconnect.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./clz.yaml, ~/.popclozet/clz.yaml)")
}

// openLocalDB opens the local store with the storefront schema.
func openLocalDB() (*store.Store, error) {
	st, err := localdb.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store at %s: %w", cfg.DBPath, err)
	}
	return st, nil
}

// backendClient builds the remote client, or nil when no backend is
// configured. Commands that need the backend check for nil and degrade to
// local-only behavior the same way the storefront does offline.
func backendClient() *remote.HTTPClient {
	if cfg.Backend.URL == "" {
		return nil
	}
	return remote.NewHTTPClient(remote.HTTPConfig{
		BaseURL: cfg.Backend.URL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
	})
}

// newLogger builds a prefixed logger. When a log file is configured it writes
// through a size-rotated file, otherwise to stderr.
func newLogger(prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
	}
	return log.New(w, prefix, log.LstdFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
