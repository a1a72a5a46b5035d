// Package main is the entry point for the Vault PKI client.
package main

import (
	"fmt"
	"os"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// versionString renders the build information.
func versionString() string {
	return fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit)
}
