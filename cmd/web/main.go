// Command web serves the Auburn hazmat site: it assembles pages from their shared fragments,
// renders markdown content pages and relays quote requests by mail.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
