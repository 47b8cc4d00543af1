// Package main is the entry point for the dashingest application.
package main

import (
	"os"

	"github.com/jmylchreest/dashingest/cmd/dashingest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
