// Command brigade validates and runs declarative workflows against the
// built-in restaurant agents.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
