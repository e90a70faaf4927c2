package main

import (
	"fmt"
	"os"

	"worker-cli/internal/logger"
)

var log = logger.Named("cli")

func main() {
	// Log output moves to the configured file once a command loads its
	// config; until then entries go to stderr.
	logger.Configure()

	args := os.Args[1:]
	if len(args) == 0 {
		usage(os.Stderr)
		os.Exit(2)
	}
	switch args[0] {
	case "run":
		runMain(args[1:])
	case "list":
		listMain(args[1:])
	case "show":
		showMain(args[1:])
	case "init":
		initMain(args[1:])
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func usage(w *os.File) {
	fmt.Fprint(w, `worker-cli runs policy-governed workers from a local registry.

Usage:
  worker-cli run <worker> [flags] [task...]
  worker-cli list [flags]
  worker-cli show <worker> [flags]
  worker-cli init [flags]

Run flags:
  -task string        task text (alternative to trailing args)
  -param k=v          instruction parameter, repeatable
  -attach box:path    attachments as sandbox:path, comma-separated or repeatable
  -model string       model override for this run
  -config string      config file path (default ~/.worker-cli/config.toml)
  -c k=v              config override, repeatable
  -json               print the full result as JSON
  -trace              print the delegation trace to stderr

init writes a starter config file; -c overrides apply, -force overwrites.
`)
}
