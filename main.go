// The main package for the specharvest executable.
package main

import (
	"github.com/orefield/specharvest/cmd"
)

func main() {
	cmd.Execute()
}
