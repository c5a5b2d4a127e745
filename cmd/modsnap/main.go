// Modsnap rebuilds only the modules of a multi-module build whose sources
// changed since their last successful build.
package main

import "github.com/albertocavalcante/modsnap/cmd/modsnap/internal/cli"

func main() {
	cli.Execute()
}
