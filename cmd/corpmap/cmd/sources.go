package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opencorpdata/corpmap/pkg/sources"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured source adapters",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(_ *cobra.Command, _ []string) error {
	registry, err := sources.LoadFile(viper.GetString("descriptors"))
	if err != nil {
		return err
	}

	adapters := registry.List()
	if outputJSON() {
		type row struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			KeyType string `json:"key_type"`
			Pattern string `json:"pattern"`
		}
		rows := make([]row, 0, len(adapters))
		for _, a := range adapters {
			rows = append(rows, row{
				ID:      a.ID().String(),
				Name:    a.Name(),
				KeyType: string(a.KeyType()),
				Pattern: string(a.Pattern()),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	fmt.Printf("%d source(s) configured:\n\n", len(adapters))
	for _, a := range adapters {
		fmt.Printf("%-20s %-10s key=%-12s %s\n", a.ID(), a.Pattern(), a.KeyType(), a.Name())
	}
	return nil
}
