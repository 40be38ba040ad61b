// The mailsnip command polls a mailbox for unread messages, marks them
// read and saves a short JSON summary of each one to a directory.
package main

import (
	"os"
)

// version is set at build time.
var version = "dev"

func main() {
	root := newRootCmd()
	root.Version = version
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
