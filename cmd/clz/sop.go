package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/popclozet/popclozet/internal/catalog"
	"github.com/popclozet/popclozet/internal/localdb"
	"github.com/popclozet/popclozet/internal/models"
	"github.com/popclozet/popclozet/internal/sop"
)

var sopCmd = &cobra.Command{
	Use:   "sop <product-id>",
	Short: "Generate a hygiene SOP for a product",
	Long: `Generate a hygiene standard operating procedure for a rental garment.

Fabric type is inferred from the product's category and, when configured,
refined by the Anthropic API. Generation degrades to a rule-based fallback
when no API key is set or the model response can't be used, so this command
always produces a usable SOP.

The SOP is stored locally and, when a backend is configured and reachable,
recorded remotely as well.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		productID := args[0]
		fabricHint, _ := cmd.Flags().GetString("fabric")

		st, err := openLocalDB()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		rc := backendClient()
		cache := catalog.New(st, rc, newLogger("[catalog] "))

		product, err := cache.GetByID(ctx, productID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching product: %v\n", err)
			os.Exit(1)
		}
		if product == nil {
			fmt.Fprintf(os.Stderr, "Error: product %s not found\n", productID)
			os.Exit(1)
		}

		var gen sop.Generator
		if cfg.Anthropic.APIKey != "" {
			gen = sop.NewAnthropicGenerator(sop.GeneratorConfig{
				APIKey: cfg.Anthropic.APIKey,
				Model:  cfg.Anthropic.Model,
			})
		}
		svc := sop.NewService(gen, newLogger("[sop] "))
		if !svc.Available() {
			fmt.Println("No Anthropic API key configured; using rule-based generation")
		}

		category := string(product.Event)
		inference := svc.InferFabric(ctx, category, string(product.Gender), fabricHint)
		fmt.Printf("Fabric: %s (%s, confidence: %s)\n",
			inference.FabricType, inference.Composition, inference.Confidence)

		procedure := svc.GenerateSOP(ctx, inference.FabricType, inference.Composition,
			category, string(product.Gender))

		body, err := json.MarshalIndent(procedure, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding SOP: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%s\n", body)

		rec := models.SOPRecord{
			ID:         uuid.NewString(),
			ProductID:  product.ID,
			FabricType: inference.FabricType,
			Body:       body,
			CreatedAt:  time.Now().UTC(),
		}
		if err := st.Put(ctx, localdb.PartitionSOPs, rec.ID, rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing SOP locally: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nSOP stored locally (%s)\n", rec.ID)

		if rc != nil {
			if err := rc.InsertSOP(ctx, &rec); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to record SOP remotely: %v\n", err)
			} else {
				fmt.Println("SOP recorded remotely")
			}
		}
	},
}

func init() {
	sopCmd.Flags().String("fabric", "", "Fabric hint to guide inference (e.g. \"silk blend\")")
	rootCmd.AddCommand(sopCmd)
}
