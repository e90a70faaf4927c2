package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"worker-cli/internal/agent"
	anthropicmodel "worker-cli/internal/agent/anthropic"
	openaimodel "worker-cli/internal/agent/openai"
	"worker-cli/internal/attachments"
	"worker-cli/internal/config"
	"worker-cli/internal/engine"
	"worker-cli/internal/logger"
	"worker-cli/internal/registry"
	"worker-cli/internal/render"
)

func runMain(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var params stringSlice
	var attach csvSlice
	var overrides stringSlice
	task := fs.String("task", "", "task text for the worker")
	model := fs.String("model", "", "model override for this run")
	cfgPath := fs.String("config", "", "config file path")
	jsonOut := fs.Bool("json", false, "print the full result as JSON")
	showTrace := fs.Bool("trace", false, "print the delegation trace to stderr")
	fs.Var(&params, "param", "instruction parameter as k=v, repeatable")
	fs.Var(&attach, "attach", "attachments as sandbox:path, comma-separated or repeatable")
	fs.Var(&overrides, "c", "config override as k=v, repeatable")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		log.Fatalf("run: worker name is required")
	}
	worker := rest[0]
	taskText := strings.TrimSpace(*task)
	if taskText == "" {
		taskText = strings.TrimSpace(strings.Join(rest[1:], " "))
	}
	if taskText == "" {
		log.Fatalf("run: task is required (trailing args or -task)")
	}

	cfg := loadConfig(*cfgPath, overrides)
	specs, err := parseAttachments(attach)
	if err != nil {
		log.Fatalf("run: %v", err)
	}

	client, defaultModel := buildModelClient(cfg)
	eng := engine.NewEngine(engine.Options{
		Registry:     registry.New(cfg.RegistryRoot),
		Client:       client,
		Approver:     approverForMode(cfg.ApprovalMode, os.Stdin, os.Stderr),
		DefaultModel: defaultModel,
		MaxCallDepth: cfg.MaxCallDepth,
	})

	res, err := eng.Run(context.Background(), engine.Request{
		Worker:      worker,
		Task:        taskText,
		Params:      parseKVPairs(params),
		Attachments: specs,
		Model:       strings.TrimSpace(*model),
	})
	if *showTrace && len(res.Trace) > 0 {
		fmt.Fprint(os.Stderr, render.Trace(res.Trace, terminalWidth()))
	}
	if err != nil {
		if errors.Is(err, ErrQuit) {
			fmt.Fprintln(os.Stderr, "aborted")
			os.Exit(130)
		}
		log.Fatalf("run %s: %v", worker, err)
	}

	if *jsonOut {
		encoded, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			log.Fatalf("encode result: %v", err)
		}
		fmt.Println(string(encoded))
		return
	}
	fmt.Print(render.Output(res))
}

func loadConfig(path string, overrides []string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg = config.ApplyKVOverrides(cfg, overrides)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	if _, _, err := logger.SetupFile(cfg.LogPath); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	}
	return cfg
}

// buildModelClient returns the provider client and the host default model.
// Echo mode runs without credentials, so it always has a usable default.
func buildModelClient(cfg config.Config) (agent.ModelClient, string) {
	defaultModel := strings.TrimSpace(cfg.Model)
	echoDefault := defaultModel
	if echoDefault == "" {
		echoDefault = "echo"
	}
	switch cfg.Provider {
	case "echo":
		return agent.EchoClient{Prefix: "assistant: "}, echoDefault
	case "openai":
		client, err := openaimodel.New(openaimodel.Options{
			APIKey:  cfg.Token,
			BaseURL: cfg.URL,
			Model:   cfg.Model,
		})
		if err != nil {
			log.Fatalf("init openai client: %v", err)
		}
		return client, defaultModel
	default:
		if strings.TrimSpace(cfg.Token) == "" {
			log.Warnf("no token configured; falling back to echo mode")
			return agent.EchoClient{Prefix: "assistant: "}, echoDefault
		}
		client, err := anthropicmodel.New(anthropicmodel.Options{
			Token:   cfg.Token,
			BaseURL: cfg.URL,
			Model:   cfg.Model,
		})
		if err != nil {
			log.Fatalf("init anthropic client: %v", err)
		}
		return client, defaultModel
	}
}

func parseAttachments(refs []string) ([]attachments.Spec, error) {
	specs := make([]attachments.Spec, 0, len(refs))
	for _, ref := range refs {
		box, rel, ok := strings.Cut(ref, ":")
		if !ok || strings.TrimSpace(box) == "" || strings.TrimSpace(rel) == "" {
			return nil, fmt.Errorf("attachment %q must have the form sandbox:path", ref)
		}
		specs = append(specs, attachments.Spec{Sandbox: box, Path: rel})
	}
	return specs, nil
}

func terminalWidth() int {
	if cols := strings.TrimSpace(os.Getenv("COLUMNS")); cols != "" {
		var n int
		if _, err := fmt.Sscanf(cols, "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
