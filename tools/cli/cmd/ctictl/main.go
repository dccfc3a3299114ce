// Command ctictl trains the CTI oracles and runs event files through the
// pipeline from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
