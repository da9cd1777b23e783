// The main package for the sneakerdb executable.
package main

import (
	"github.com/apicon/sneakerdb/cmd"
)

func main() {
	cmd.Execute()
}
