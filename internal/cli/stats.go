package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show namespace statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := eng.Stats(userID)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Printf("User:             %s\n", s.UserID)
	fmt.Printf("Episodes:         %d\n", s.Episodes)
	for tier, count := range s.TierCounts {
		fmt.Printf("  %-10s %d\n", tier, count)
	}
	fmt.Printf("Graph nodes:      %d\n", s.GraphNodes)
	fmt.Printf("Graph edges:      %d\n", s.GraphEdges)
	fmt.Printf("Graph density:    %.4f\n", s.GraphDensity)
	fmt.Printf("ANN size:         %d\n", s.ANNSize)
	fmt.Printf("Tombstone ratio:  %.4f\n", s.TombstoneRatio)
	if r := s.Metrics.Retrieve; r != nil {
		fmt.Printf("Retrieve avg:     %.2fms (n=%d)\n", r.AvgTimeMs, r.Count)
	}
	return nil
}
