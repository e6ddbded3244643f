package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/lanes/internal/config"
	"github.com/mattjoyce/lanes/internal/doctor"
)

type configCheckResult struct {
	Valid    bool           `json:"valid"`
	Config   string         `json:"config,omitempty"`
	Files    []string       `json:"files,omitempty"`
	Queues   []string       `json:"queues,omitempty"`
	Error    string         `json:"error,omitempty"`
	Errors   []doctor.Issue `json:"errors,omitempty"`
	Warnings []doctor.Issue `json:"warnings,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	result := configCheckResult{Valid: err == nil, Config: path}
	var lint *doctor.Result
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Files = cfg.Files
		result.Queues = cfg.QueueNames()
		lint = doctor.New(cfg).Validate()
		result.Valid = lint.Valid
		result.Errors = lint.Errors
		result.Warnings = lint.Warnings
	}

	if *jsonOut {
		if code := printJSON(result); code != 0 {
			return code
		}
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
	} else {
		fmt.Printf("Config: %s\n", path)
		fmt.Printf("  files:  %d\n", len(result.Files))
		fmt.Printf("  queues: %d\n", len(result.Queues))
		for _, name := range result.Queues {
			q := cfg.Queues[name]
			fmt.Printf("    %-20s owner=%s command=%v\n", name, q.OwnerOrDefault(name), q.Command)
		}
		fmt.Print(doctor.FormatHuman(lint))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	var verbose bool
	fs.BoolVar(&verbose, "v", false, "Show per-file hashes")
	fs.BoolVar(&verbose, "verbose", false, "Show per-file hashes")
	dryRun := fs.Bool("dry-run", false, "Compute hashes without writing manifests")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := *configPath
	if path == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		path = discovered
	}

	reports, err := config.Lock(path, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	for _, r := range reports {
		verb := "Wrote"
		if !r.Written {
			verb = "Would write"
		}
		fmt.Printf("%s %s (%d files)\n", verb, r.ChecksumPath, len(r.Files))
		if verbose {
			for _, f := range r.Files {
				if !f.Exists {
					fmt.Printf("  %-24s missing\n", f.Filename)
					continue
				}
				fmt.Printf("  %-24s %s\n", f.Filename, f.Hash)
			}
		}
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	redacted := *cfg
	if redacted.API.APIKey != "" {
		redacted.API.APIKey = "********"
	}
	if cfg.Webhooks != nil {
		hooks := *cfg.Webhooks
		hooks.Endpoints = append([]config.WebhookEndpoint(nil), cfg.Webhooks.Endpoints...)
		for i := range hooks.Endpoints {
			hooks.Endpoints[i].Secret = "********"
		}
		redacted.Webhooks = &hooks
	}

	if *jsonOut {
		return printJSON(redacted)
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}
