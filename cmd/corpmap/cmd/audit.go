package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencorpdata/corpmap"
)

var auditCmd = &cobra.Command{
	Use:   "audit [entity-key]",
	Short: "Report cross-source conflicts",
	Long: `Audit summarizes how much the sources disagree about the entities in
the registry. With an entity key it lists every field comparison for that
entity instead.

Examples:

  corpmap audit
  corpmap audit brno:1248100998`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if len(args) == 1 {
		return auditEntity(cmd, client, args[0])
	}

	summary, err := client.Audit(cmd.Context())
	if err != nil {
		return err
	}

	if outputJSON() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("Entities checked:        %d\n", summary.EntitiesChecked)
	fmt.Printf("Entities with conflicts: %d\n", summary.EntitiesWithConflicts)
	fmt.Printf("Total conflicts:         %d\n", summary.TotalConflicts)
	return nil
}

func auditEntity(cmd *cobra.Command, client corpmap.Client, key string) error {
	conflicts, err := client.Store().Conflicts(cmd.Context(), key)
	if err != nil {
		return err
	}

	if outputJSON() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conflicts)
	}

	if len(conflicts) == 0 {
		fmt.Println("No cross-checks recorded for", key)
		return nil
	}
	for _, c := range conflicts {
		marker := "ok"
		if c.IsConflict {
			marker = "CONFLICT"
		}
		fmt.Printf("[%s] %s: %s=%q vs %s=%q (similarity %.2f)\n",
			marker, c.Field, c.SourceA, c.ValueA, c.SourceB, c.ValueB, c.Similarity)
	}
	return nil
}
