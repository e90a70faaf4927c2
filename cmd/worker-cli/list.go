package main

import (
	"flag"
	"fmt"

	"worker-cli/internal/registry"

	"gopkg.in/yaml.v3"
)

func listMain(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var overrides stringSlice
	cfgPath := fs.String("config", "", "config file path")
	fs.Var(&overrides, "c", "config override as k=v, repeatable")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}

	cfg := loadConfig(*cfgPath, overrides)
	reg := registry.New(cfg.RegistryRoot)
	names, err := reg.List()
	if err != nil {
		log.Fatalf("list workers: %v", err)
	}
	if len(names) == 0 {
		fmt.Printf("no workers in %s\n", cfg.RegistryRoot)
		return
	}
	for _, name := range names {
		line := name
		if def, err := reg.Load(name); err == nil && def.Description != "" {
			line = fmt.Sprintf("%-20s %s", name, def.Description)
		} else if err != nil {
			line = fmt.Sprintf("%-20s (invalid: %v)", name, err)
		}
		fmt.Println(line)
	}
}

func showMain(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	var overrides stringSlice
	cfgPath := fs.String("config", "", "config file path")
	fs.Var(&overrides, "c", "config override as k=v, repeatable")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}
	rest := fs.Args()
	if len(rest) != 1 {
		log.Fatalf("show: exactly one worker name is required")
	}

	cfg := loadConfig(*cfgPath, overrides)
	def, err := registry.New(cfg.RegistryRoot).Load(rest[0])
	if err != nil {
		log.Fatalf("show %s: %v", rest[0], err)
	}
	encoded, err := yaml.Marshal(def)
	if err != nil {
		log.Fatalf("encode definition: %v", err)
	}
	fmt.Print(string(encoded))
}
