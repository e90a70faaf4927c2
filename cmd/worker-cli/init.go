package main

import (
	"flag"
	"fmt"
	"os"

	"worker-cli/internal/config"
)

// initMain writes a starter config file so new hosts do not have to hand-edit
// TOML before their first run.
func initMain(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var overrides stringSlice
	cfgPath := fs.String("config", "", "config file path")
	force := fs.Bool("force", false, "overwrite an existing config file")
	fs.Var(&overrides, "c", "config override as k=v, repeatable")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}

	cfg := config.ApplyKVOverrides(config.Default(), overrides)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	path := *cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	if !*force && path != "" {
		if _, err := os.Stat(path); err == nil {
			log.Fatalf("init: %s already exists (use -force to overwrite)", path)
		}
	}
	if err := config.Save(cfg, path); err != nil {
		log.Fatalf("write config: %v", err)
	}
	fmt.Printf("wrote %s\n", path)
}
