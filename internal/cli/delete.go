package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an episode",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := eng.Delete(userID, args[0]); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	fmt.Printf("Deleted episode: %s\n", args[0])
	return nil
}
