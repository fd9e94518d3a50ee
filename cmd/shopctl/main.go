// Shopctl is a storefront client: product browsing, cart and checkout,
// order management, and the admin analytics console, backed by a cached,
// tag-invalidated data-fetching layer.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
