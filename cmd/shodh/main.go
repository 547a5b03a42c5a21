// Command shodh is the developer CLI for the local memory engine.
package main

import (
	"fmt"
	"os"

	"github.com/shodh/memory-engine/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
