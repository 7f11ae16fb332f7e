// ./main.go
package main

import (
	"github.com/coursepilot-dev/coursepilot/cmd"
)

// main is the entry point for the coursepilot CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// It handles command-line parsing, configuration, and execution.
	cmd.Execute()
}
