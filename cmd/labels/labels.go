package labels

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hvirtala/bottletag-go/internal/conf"
	"github.com/hvirtala/bottletag-go/internal/datastore"
	labelsvc "github.com/hvirtala/bottletag-go/internal/labels"
	"github.com/hvirtala/bottletag-go/internal/volume"
)

// Command creates the labels command for provisioning label batches from the CLI.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		skuCode  string
		quantity int
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Generate a batch of label codes",
		Long:  "Provision a batch of unique label codes for a SKU and print them, one per line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateBatch(settings, skuCode, quantity, notes)
		},
	}

	cmd.Flags().StringVar(&skuCode, "sku", "", "SKU code to provision labels for")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "Number of labels to generate")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form note recorded on the batch")
	if err := cmd.MarkFlagRequired("sku"); err != nil {
		fmt.Printf("error marking flag required: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.MarkFlagRequired("quantity"); err != nil {
		fmt.Printf("error marking flag required: %v\n", err)
		os.Exit(1)
	}

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func generateBatch(settings *conf.Settings, skuCode string, quantity int, notes string) error {
	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer ds.Close() //nolint:errcheck // read-mostly CLI path, close error is not actionable

	sku, err := ds.GetSKUByCode(skuCode)
	if err != nil {
		return fmt.Errorf("failed to resolve sku %q: %w", skuCode, err)
	}

	engine := volume.New(volume.ConfigFromSettings(settings))
	svc := labelsvc.NewService(ds, engine, labelsvc.ConfigFromSettings(settings), nil, nil)

	result, err := svc.GenerateBatch(labelsvc.GenerateRequest{
		SKUID:    sku.ID,
		Quantity: quantity,
		Notes:    notes,
		ActorID:  "cli",
	})
	if err != nil {
		return fmt.Errorf("failed to generate batch: %w", err)
	}

	fmt.Printf("batch %s (%d labels)\n", result.BatchID, len(result.Codes))
	for _, code := range result.Codes {
		fmt.Println(code)
	}
	return nil
}
