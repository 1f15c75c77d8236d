package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/popclozet/popclozet/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <legacy-file>",
	Short: "Import legacy key-value export into the local store",
	Long: `One-time import of a legacy flat-JSON export (cart, wishlist, theme).

Migration is gated by a preference flag: once it has run, later invocations
are no-ops, so it is safe to call on every startup. Items that fail to parse
are skipped and reported; they never abort the migration.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := openLocalDB()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		res, err := migrate.FromLegacy(cmd.Context(), st, args[0], newLogger("[migrate] "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during migration: %v\n", err)
			os.Exit(1)
		}

		if res.Skipped {
			fmt.Println("Migration already completed, nothing to do")
			return
		}

		fmt.Printf("Migration complete\n")
		fmt.Printf("   Cart items:     %d\n", res.CartItems)
		fmt.Printf("   Wishlist items: %d\n", res.WishlistItems)
		fmt.Printf("   Preferences:    %d\n", res.Preferences)
		if len(res.Errors) > 0 {
			fmt.Printf("   Skipped %d items:\n", len(res.Errors))
			for _, e := range res.Errors {
				fmt.Printf("     - %v\n", e)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
