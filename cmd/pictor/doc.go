// Package main hosts the pictor CLI entrypoint and command graph.
//
// The Cobra-based command tree registers inbound bags, runs individual
// pipeline stages or the whole remaining sequence, inspects the registry, and
// recreates published manifests. It centralizes configuration resolution and
// structured logging setup so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
