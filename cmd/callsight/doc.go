// Package main hosts the callsight CLI entrypoint and command graph.
//
// The Cobra-based command tree runs call analysis sessions locally or against
// a callsightd instance, runs batches, browses and exports session history,
// checks the environment and scaffolds configuration. It centralizes
// configuration resolution and logger setup so subcommands can focus on
// output instead of wiring.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through dedicated commands or flags here.
package main
