package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencorpdata/corpmap/pkg/company"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query all sources for a company and resolve the results",
	Long: `Search queries every applicable source for a company identified by
business registration number, corporation registration number, company
name, or any combination, and prints the resolved entities.

Examples:

  corpmap search --brno 124-81-00998
  corpmap search --name 삼성전자 --save
  corpmap search --crno 1301110006246 -o json`,
	RunE: runSearch,
}

func init() {
	flags := searchCmd.Flags()
	flags.String("brno", "", "business registration number")
	flags.String("crno", "", "corporation registration number")
	flags.String("name", "", "company name")
	flags.Bool("save", false, "persist the result to the entity registry")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, _ []string) error {
	query := company.Query{}
	query.BRNO, _ = cmd.Flags().GetString("brno")
	query.CRNO, _ = cmd.Flags().GetString("crno")
	query.CompanyName, _ = cmd.Flags().GetString("name")

	client, err := newClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	result, err := client.Search(cmd.Context(), query)
	if err != nil {
		return err
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		stats, err := client.Persist(cmd.Context(), result)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved: %d added, %d updated, %d snapshots\n",
			stats.EntitiesAdded, stats.EntitiesUpdated, stats.SnapshotsWritten)
	}

	if outputJSON() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(result)
	return nil
}

func printResult(result *company.Result) {
	if len(result.Entities) == 0 {
		fmt.Println("No entities found")
	}
	for i := range result.Entities {
		entity := &result.Entities[i]
		fmt.Printf("%s [%s %.2f]\n", entity.CanonicalName, entity.MatchLevel, entity.Confidence)
		if entity.Identifiers.BRNO != "" {
			fmt.Printf("  brno: %s\n", entity.Identifiers.BRNO)
		}
		if entity.Identifiers.CRNO != "" {
			fmt.Printf("  crno: %s\n", entity.Identifiers.CRNO)
		}
		if len(entity.NameVariants) > 1 {
			fmt.Printf("  also known as: %v\n", entity.NameVariants[1:])
		}
		fmt.Printf("  sources: %v\n", entity.Sources)
	}
	if len(result.Unmatched) > 0 {
		fmt.Printf("\n%d record(s) could not be matched to an entity\n", len(result.Unmatched))
	}
	fmt.Printf("\n%d/%d source calls succeeded", result.Meta.Succeeded, result.Meta.Attempted)
	if result.Meta.CacheHit {
		fmt.Print(" (cached)")
	}
	fmt.Println()
	for _, callErr := range result.Meta.Errors {
		fmt.Printf("  %s [%s]: %s\n", callErr.Source, callErr.Phase, callErr.Message)
	}
}
