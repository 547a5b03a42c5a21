package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	retrieveK              int
	retrieveIncludeArchive bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Retrieve episodes relevant to a query",
	Long: `Retrieve runs the hybrid vector + knowledge-graph retriever and
returns the top-K most relevant episodes.

Example:
  shodh retrieve "what happened with the staging deploy" --k 5`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveK, "k", 10, "number of results to return")
	retrieveCmd.Flags().BoolVar(&retrieveIncludeArchive, "include-archive", false, "include archived-tier episodes")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	results, err := eng.Retrieve(cliContext(), userID, args[0], retrieveK, retrieveIncludeArchive)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s — %s\n", i+1, r.Relevance, r.MemoryID, r.Content)
	}
	return nil
}
