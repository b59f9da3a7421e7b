// ./main.go
package main

import (
	"github.com/gridpilot/gridpilot/cmd"
)

// main is the entry point for the gridpilot CLI.
func main() {
	// Execute the root command defined in the cmd package.
	cmd.Execute()
}
