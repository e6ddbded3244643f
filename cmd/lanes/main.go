package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "queue":
		return runQueueNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "watch":
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: lanes version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		return printJSON(info)
	}

	fmt.Printf("lanes %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`lanes - Queued command dispatcher with per-owner lanes

Usage:
  lanes <noun> <action> [flags]

Core Resources (Nouns):
  system    Daemon lifecycle and health
  config    Configuration validation and integrity
  queue     Push, inspect, and clear queued tasks

System Commands:
  system start      Run the dispatcher daemon in the foreground
  system status     Show daemon, lock, and API state

Config Commands:
  config check      Validate syntax, queue policy, and integrity
  config lock       Regenerate BLAKE3 integrity manifests
  config show       Print the resolved configuration

Queue Commands:
  queue list        Show live dispatchers
  queue push        Push a task onto a configured queue
  queue clear       Discard the buffered tasks of a dispatcher
  queue history     Show settled tasks from the history log
  queue watch       Real-time queue monitoring TUI

General:
  version           Show version information
  help              Show this help message

Use 'lanes <noun> help' for action-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runQueueNoun(args []string) int {
	if len(args) < 1 {
		printQueueNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printQueueNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	if hasHelpFlag(actionArgs) {
		printQueueActionHelp(action)
		return 0
	}
	switch action {
	case "list":
		return runQueueList(actionArgs)
	case "push":
		return runQueuePush(actionArgs)
	case "clear":
		return runQueueClear(actionArgs)
	case "history":
		return runQueueHistory(actionArgs)
	case "watch":
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown queue action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// splitFlagsAndPositionals lets positionals come before flags, which the
// flag package alone does not allow. takesValue names flags that consume
// the following argument.
func splitFlagsAndPositionals(args []string, takesValue map[string]bool) ([]string, []string) {
	var flags, positionals []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positionals = append(positionals, arg)
			continue
		}
		flags = append(flags, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if takesValue[name] && i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	return flags, positionals
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: lanes system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: lanes config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printQueueNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: lanes queue <action> [flags]")
	fmt.Fprintln(w, "Actions: list, push, clear, history, watch")
}

func printSystemStartHelp() {
	fmt.Println("Usage: lanes system start [--config PATH]")
	fmt.Println("Run the dispatcher daemon in the foreground until SIGINT or SIGTERM.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: lanes system status [--config PATH] [--json]")
	fmt.Println("Show config validity, PID lock holder, and API health.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Config is valid and the daemon is running")
	fmt.Println("  1  Otherwise")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: lanes config check [--config PATH] [--json]")
	fmt.Println("Validate configuration syntax, queue policy, and integrity manifests.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: lanes config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Write a .checksums manifest for every directory in the include tree.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: lanes config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration with secrets redacted.")
}

func printQueueActionHelp(action string) {
	client := "  --api-url URL    Daemon API URL (or LANES_API_URL, default http://127.0.0.1:8080)\n" +
		"  --api-key KEY    API bearer key (or LANES_API_KEY)"
	switch action {
	case "list":
		fmt.Println("Usage: lanes queue list [--json] [flags]")
		fmt.Println("Show every live dispatcher with buffer and counters.")
	case "push":
		fmt.Println("Usage: lanes queue push [queue] [args...] [--owner NAME] [--args JSON] [flags]")
		fmt.Println("Push a task. Without a queue name an interactive picker lists configured queues.")
		fmt.Println("  --owner NAME     Dispatcher owner (default: the queue's configured owner)")
		fmt.Println("  --args JSON      Task arguments as a JSON array instead of positionals")
		fmt.Println("  --config PATH    Config used for owner defaults and the picker")
	case "clear":
		fmt.Println("Usage: lanes queue clear <owner> <queue> [flags]")
		fmt.Println("Discard buffered tasks. A running task is not interrupted.")
	case "history":
		fmt.Println("Usage: lanes queue history <owner> <queue> [--limit N] [--json] [flags]")
		fmt.Println("Show settled tasks, newest first.")
	case "watch":
		fmt.Println("Usage: lanes queue watch [flags]")
		fmt.Println("Real-time TUI of dispatcher stats and the task event stream.")
		fmt.Println("Keys: q quit, up/down select")
	default:
		printQueueNounHelp(os.Stdout)
		return
	}
	fmt.Println(client)
}
