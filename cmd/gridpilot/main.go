// cmd/gridpilot/main.go
package main

import (
	"github.com/gridpilot/gridpilot/cmd"
)

func main() {
	cmd.Execute()
}
