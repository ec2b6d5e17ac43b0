// Package main provides the deckhand binary: a declarative multi-service
// deployment tool. A YAML descriptor declares services, networks and volumes;
// deckhand resolves the dependency graph and drives the Docker runtime to
// match it.
//
// Usage:
//
//	deckhand <command> [flags]
//
// Commands:
//
//	up       - Deploy a descriptor
//	down     - Tear down a deployed project
//	ps       - Show deployment status
//	logs     - Stream a service's logs
//	config   - Validate a descriptor and print its resolved form
//	serve    - Run the read-only status API server
//	version  - Show version
package main

import (
	"fmt"
	"os"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes.
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitUsageError  = 2
	ExitConfigError = 3
	ExitDockerError = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: deckhand <command> [flags]")
		fmt.Fprintln(os.Stderr, "commands: up, down, ps, logs, config, serve, version")
		return ExitUsageError
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "up":
		return upCmd(rest)
	case "down":
		return downCmd(rest)
	case "ps":
		return psCmd(rest)
	case "logs":
		return logsCmd(rest)
	case "config":
		return configCmd(rest)
	case "serve":
		return serveCmd(rest)
	case "version":
		fmt.Printf("deckhand %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		return ExitUsageError
	}
}
