// Command dittons runs the DittoNS namespace server and talks to it.
//
// Usage:
//
//	dittons init                     write a default config file
//	dittons start                    run the server
//	dittons config schema            print the config JSON schema
//	dittons fs ls /some/dir          browse a running server
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dittons: %v\n", err)
		os.Exit(1)
	}
}
