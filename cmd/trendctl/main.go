// Command trendctl runs the trend operations over a price series read from a
// file or stdin, and pushes live threshold reloads to a running trend engine.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout).rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "trendctl:", err)
		os.Exit(1)
	}
}
