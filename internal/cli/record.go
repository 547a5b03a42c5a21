package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shodh/memory-engine/internal/models"
)

var (
	recordType string
	recordTags []string
)

var recordCmd = &cobra.Command{
	Use:   "record <content>",
	Short: "Record a new episode",
	Long: `Record stores content as a new episode, deduplicated by content hash
within the user namespace.

Examples:
  shodh record "the deploy to staging failed with a timeout"
  shodh record "switched to the new retry policy" --type decision --tags infra,retry`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordType, "type", "t", "observation", "experience type")
	recordCmd.Flags().StringSliceVar(&recordTags, "tags", nil, "tags for this episode")
}

func runRecord(cmd *cobra.Command, args []string) error {
	ep, duplicate, err := eng.Record(cliContext(), userID, args[0], models.ExperienceType(recordType), recordTags, nil)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if duplicate {
		fmt.Printf("Duplicate of existing episode: %s\n", ep.ID)
		return nil
	}
	fmt.Printf("Recorded episode: %s (importance %.2f)\n", ep.ID, ep.Importance)
	return nil
}
