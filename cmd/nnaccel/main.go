// Command nnaccel simulates the scheduling core of the dual-mode inference
// accelerator.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/nnaccel/cmd/nnaccel/cmd"
)

func main() {
	atexit.Exit(cmd.Execute())
}
