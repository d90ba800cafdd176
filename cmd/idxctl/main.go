// Command idxctl inspects, decodes and migrates idxstore catalogs.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
