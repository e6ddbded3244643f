package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/lanes/internal/api"
	"github.com/mattjoyce/lanes/internal/config"
	"github.com/mattjoyce/lanes/internal/tui/picker"
	"github.com/mattjoyce/lanes/internal/tui/watch"
)

const defaultAPIURL = "http://127.0.0.1:8080"

// apiClient talks to a running `lanes system start`.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return errors.New(resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// clientFlags registers --api-url and --api-key on fs.
func clientFlags(fs *flag.FlagSet) func() (*apiClient, error) {
	apiURL := fs.String("api-url", envOr("LANES_API_URL", defaultAPIURL), "Daemon API URL")
	apiKey := fs.String("api-key", os.Getenv("LANES_API_KEY"), "API bearer key")
	return func() (*apiClient, error) {
		if *apiKey == "" {
			return nil, errors.New("API key required. Use --api-key or LANES_API_KEY env var")
		}
		return &apiClient{baseURL: *apiURL, apiKey: *apiKey, http: &http.Client{Timeout: 10 * time.Second}}, nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func queuePath(owner, id string, suffix string) string {
	return "/queues/" + url.PathEscape(owner) + "/" + url.PathEscape(id) + suffix
}

func runQueueList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	newClient := clientFlags(fs)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	client, err := newClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var resp api.QueueListResponse
	if err := client.do(http.MethodGet, "/queues", nil, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list queues: %v\n", err)
		return 1
	}
	if *jsonOut {
		return printJSON(resp)
	}

	rows := make([][]string, 0, len(resp.Queues))
	for _, st := range resp.Queues {
		state := "idle"
		switch {
		case !st.Running:
			state = "stopped"
		case !st.Idle:
			state = "busy"
		}
		rows = append(rows, []string{
			st.Owner, st.Queue,
			fmt.Sprintf("%d/%d", st.Pending, st.Capacity),
			state,
			strconv.FormatInt(st.Succeeded, 10),
			strconv.FormatInt(st.Failed, 10),
			strconv.FormatInt(st.Discarded, 10),
			st.Overflow + "/" + st.Failure,
		})
	}
	fmt.Println(renderTable([]string{"OWNER", "QUEUE", "BUFFER", "STATE", "DONE", "FAILED", "DROPPED", "POLICY"}, rows))
	return 0
}

func runQueuePush(args []string) int {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	newClient := clientFlags(fs)
	owner := fs.String("owner", "", "Dispatcher owner")
	argsJSON := fs.String("args", "", "Task arguments as a JSON array")
	configPath := fs.String("config", "", "Path to configuration file")
	flags, positionals := splitFlagsAndPositionals(args, map[string]bool{
		"api-url": true, "api-key": true, "owner": true, "args": true, "config": true,
	})
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	client, err := newClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Config is optional here; it only supplies owner defaults and the picker.
	cfg, _, cfgErr := loadConfig(*configPath)

	var queueName string
	if len(positionals) > 0 {
		queueName, positionals = positionals[0], positionals[1:]
	} else {
		if cfgErr != nil {
			fmt.Fprintf(os.Stderr, "Queue name required (config unavailable for picker: %v)\n", cfgErr)
			return 1
		}
		queueName, err = picker.Run("Select a queue (Enter to push, q to cancel)", queueChoices(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	taskArgs, err := buildTaskArgs(*argsJSON, positionals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	o := *owner
	if o == "" {
		o = queueName
		if cfgErr == nil {
			if q, ok := cfg.Queues[queueName]; ok {
				o = q.OwnerOrDefault(queueName)
			}
		}
	}

	var resp api.PushResponse
	if err := client.do(http.MethodPost, queuePath(o, queueName, "/tasks"), api.PushRequest{Args: taskArgs}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to push: %v\n", err)
		return 1
	}
	fmt.Printf("%s/%s task %d (%s) %s\n", resp.Owner, resp.Queue, resp.TaskID, resp.Ref, resp.Status)
	return 0
}

// buildTaskArgs prefers an explicit JSON array and otherwise passes the
// positionals through as strings.
func buildTaskArgs(argsJSON string, positionals []string) ([]any, error) {
	if argsJSON != "" {
		if len(positionals) > 0 {
			return nil, errors.New("use either --args or positional arguments, not both")
		}
		var out []any
		dec := json.NewDecoder(strings.NewReader(argsJSON))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("--args must be a JSON array: %w", err)
		}
		return out, nil
	}
	out := make([]any, 0, len(positionals))
	for _, p := range positionals {
		out = append(out, p)
	}
	return out, nil
}

func queueChoices(cfg *config.Config) []picker.Choice {
	names := cfg.QueueNames()
	choices := make([]picker.Choice, 0, len(names))
	for _, name := range names {
		q := cfg.Queues[name]
		choices = append(choices, picker.Choice{
			Key:    name,
			Detail: fmt.Sprintf("owner %s: %s", q.OwnerOrDefault(name), strings.Join(q.Command, " ")),
		})
	}
	return choices
}

func runQueueClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	newClient := clientFlags(fs)
	flags, positionals := splitFlagsAndPositionals(args, map[string]bool{"api-url": true, "api-key": true})
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: lanes queue clear <owner> <queue>")
		return 1
	}
	client, err := newClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var resp api.ClearResponse
	if err := client.do(http.MethodPost, queuePath(positionals[0], positionals[1], "/clear"), nil, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to clear: %v\n", err)
		return 1
	}
	fmt.Printf("Cleared %d task(s) from %s/%s\n", resp.Cleared, positionals[0], positionals[1])
	return 0
}

func runQueueHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	newClient := clientFlags(fs)
	limit := fs.Int("limit", 20, "Maximum entries")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	flags, positionals := splitFlagsAndPositionals(args, map[string]bool{"api-url": true, "api-key": true, "limit": true})
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: lanes queue history <owner> <queue> [--limit N]")
		return 1
	}
	client, err := newClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var resp api.HistoryResponse
	path := queuePath(positionals[0], positionals[1], "/history?limit="+strconv.Itoa(*limit))
	if err := client.do(http.MethodGet, path, nil, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}
	if *jsonOut {
		return printJSON(resp)
	}

	rows := make([][]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		detail := e.Reason
		if e.LastError != "" {
			detail = e.LastError
		}
		rows = append(rows, []string{
			e.SettledAt.Local().Format(time.DateTime),
			strconv.FormatInt(e.TaskID, 10),
			string(e.Status),
			strconv.Itoa(e.Attempts),
			e.SettledAt.Sub(e.EnqueuedAt).Round(time.Millisecond).String(),
			detail,
		})
	}
	fmt.Println(renderTable([]string{"SETTLED", "TASK", "STATUS", "ATTEMPTS", "LATENCY", "DETAIL"}, rows))
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	newClient := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	client, err := newClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(client.baseURL, client.apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			return s
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
