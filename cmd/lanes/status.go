package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/lanes/internal/api"
	"github.com/mattjoyce/lanes/internal/lock"
)

type statusReport struct {
	Config    string               `json:"config"`
	ConfigOK  bool                 `json:"config_ok"`
	Error     string               `json:"error,omitempty"`
	Queues    int                  `json:"queues"`
	LockPath  string               `json:"lock_path,omitempty"`
	Running   bool                 `json:"running"`
	PID       int                  `json:"pid,omitempty"`
	API       string               `json:"api,omitempty"`
	APIHealth *api.HealthzResponse `json:"api_health,omitempty"`
	APIError  string               `json:"api_error,omitempty"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := statusReport{}
	cfg, path, err := loadConfig(*configPath)
	report.Config = path
	if err != nil {
		report.Error = err.Error()
	} else {
		report.ConfigOK = true
		report.Queues = len(cfg.Queues)
		report.LockPath = lock.PathFor(cfg.State.Path)

		pid, held, lerr := lock.Holder(report.LockPath)
		if lerr != nil {
			report.Error = fmt.Sprintf("lock: %v", lerr)
		}
		report.Running, report.PID = held, pid

		if cfg.API.Enabled && held {
			report.API = cfg.API.Listen
			health, herr := fetchHealthz(cfg.API.Listen)
			if herr != nil {
				report.APIError = herr.Error()
			} else {
				report.APIHealth = health
			}
		}
	}

	if *jsonOut {
		if code := printJSON(report); code != 0 {
			return code
		}
	} else {
		printStatus(report)
	}

	if report.ConfigOK && report.Running {
		return 0
	}
	return 1
}

func printStatus(r statusReport) {
	mark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "FAIL"
	}
	fmt.Printf("config   %-4s %s\n", mark(r.ConfigOK), r.Config)
	if !r.ConfigOK {
		fmt.Printf("         %s\n", r.Error)
		return
	}
	fmt.Printf("queues        %d configured\n", r.Queues)
	if r.Running {
		fmt.Printf("daemon   ok   running (pid %d, lock %s)\n", r.PID, r.LockPath)
	} else {
		fmt.Printf("daemon   FAIL not running (lock %s)\n", r.LockPath)
	}
	switch {
	case r.APIHealth != nil:
		fmt.Printf("api      ok   %s (%d queues, %d pending, up %ds)\n",
			r.API, r.APIHealth.Queues, r.APIHealth.Pending, r.APIHealth.UptimeSeconds)
		if r.APIHealth.DroppedEvents > 0 {
			fmt.Printf("events   WARN %d dropped by slow subscribers\n", r.APIHealth.DroppedEvents)
		}
	case r.APIError != "":
		fmt.Printf("api      FAIL %s: %s\n", r.API, r.APIError)
	}
}

func fetchHealthz(listen string) (*api.HealthzResponse, error) {
	base := listen
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(base + "/healthz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("healthz: %s", resp.Status)
	}
	var h api.HealthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}
