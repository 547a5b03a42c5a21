package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getWithOriginal bool

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a single episode by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().BoolVar(&getWithOriginal, "with-original", false, "decompress cold-stored content if the episode has been gist-compressed")
}

func runGet(cmd *cobra.Command, args []string) error {
	ep, err := eng.Get(userID, args[0], getWithOriginal)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	fmt.Printf("ID:         %s\n", ep.ID)
	fmt.Printf("Type:       %s\n", ep.ExperienceType)
	fmt.Printf("Tier:       %s\n", ep.Tier)
	fmt.Printf("Importance: %.3f\n", ep.Importance)
	fmt.Printf("Created:    %s\n", ep.CreatedAt)
	if ep.Compressed() && !getWithOriginal {
		fmt.Printf("Gist:       %s\n", ep.Gist)
	} else {
		fmt.Printf("Content:    %s\n", ep.Content)
	}
	return nil
}
