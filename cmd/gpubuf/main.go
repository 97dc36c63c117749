// Command gpubuf probes devices, benchmarks buffer operations and renders
// random seed buffers.
package main

import (
	"os"

	"github.com/gogpu/gpubuf/cmd/gpubuf/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
