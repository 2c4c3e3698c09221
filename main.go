// The main package for the cola-sync executable.
package main

import (
	"github.com/labelwatch/cola-sync/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
