package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show engine health",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	h := eng.Health()
	fmt.Printf("OK:          %v\n", h.OK)
	fmt.Printf("Model:       %s (loaded=%v)\n", h.ModelName, h.ModelLoaded)
	fmt.Printf("Namespaces:  %d\n", h.NamespaceCount)
	fmt.Printf("Uptime:      %.1fs\n", h.UptimeSeconds)
	return nil
}
