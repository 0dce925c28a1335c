// Package main is the single-binary entrypoint for the Vibe gamification engine.
package main

import "github.com/vibe-dev/academy/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
