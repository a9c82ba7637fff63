// The main package for the paperfeeds executable.
package main

import (
	"github.com/JakeFAU/paper-feeds/cmd"
)

func main() {
	cmd.Execute()
}
