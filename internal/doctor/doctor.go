// Package doctor lints a loaded lanes configuration for problems that parse
// cleanly but misbehave at runtime.
package doctor

import (
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattjoyce/lanes/internal/config"
)

// Result holds the outcome of a lint run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single lint error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor lints a configuration. LookPath resolves queue commands and
// defaults to exec.LookPath.
type Doctor struct {
	cfg      *config.Config
	LookPath func(file string) (string, error)
}

// New creates a Doctor for a config that already passed config.Load.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, LookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateCommands(r)
	d.validateWebhooks(r)
	d.warnTimeouts(r)
	d.warnRetryPolicy(r)
	d.warnExposedAPI(r)
	d.warnSharedOwners(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateCommands checks that every queue command resolves to an executable.
func (d *Doctor) validateCommands(r *Result) {
	for _, name := range d.cfg.QueueNames() {
		q := d.cfg.Queues[name]
		if len(q.Command) == 0 {
			continue
		}
		bin := q.Command[0]
		if _, err := d.LookPath(bin); err != nil {
			d.addError(r, "commands", fmt.Sprintf("queues.%s.command", name),
				fmt.Sprintf("command %q not found or not executable", bin))
			continue
		}
		if !filepath.IsAbs(bin) && strings.Contains(bin, string(filepath.Separator)) {
			d.addWarning(r, "commands", fmt.Sprintf("queues.%s.command", name),
				fmt.Sprintf("command %q is relative to the daemon's working directory", bin))
		}
	}
}

// validateWebhooks catches paths that only differ by a trailing slash.
func (d *Doctor) validateWebhooks(r *Result) {
	if d.cfg.Webhooks == nil {
		return
	}

	seen := make(map[string]int)
	for i, ep := range d.cfg.Webhooks.Endpoints {
		field := fmt.Sprintf("webhooks.endpoints[%d]", i)

		normalized := strings.TrimSuffix(ep.Path, "/")
		if prevIdx, exists := seen[normalized]; exists {
			d.addError(r, "webhooks", field+".path",
				fmt.Sprintf("webhook path %q conflicts with webhooks.endpoints[%d]", ep.Path, prevIdx))
		}
		seen[normalized] = i

		if q, ok := d.cfg.Queues[ep.Queue]; ok && ep.Owner != "" && ep.Owner != q.OwnerOrDefault(ep.Queue) {
			d.addWarning(r, "webhooks", field+".owner",
				fmt.Sprintf("webhook %q pushes to owner %q, a separate buffer from the configured owner %q",
					ep.Path, ep.Owner, q.OwnerOrDefault(ep.Queue)))
		}
		if len(ep.Secret) < 16 {
			d.addWarning(r, "webhooks", field+".secret",
				fmt.Sprintf("webhook %q secret is shorter than 16 bytes", ep.Path))
		}
	}
}

// warnTimeouts flags timeouts that leave commands running after the dispatcher
// has given up on them.
func (d *Doctor) warnTimeouts(r *Result) {
	for _, name := range d.cfg.QueueNames() {
		q := d.cfg.Queues[name]
		field := fmt.Sprintf("queues.%s", name)
		switch {
		case q.Timeout > 0 && q.KillAfter == 0:
			d.addWarning(r, "timeouts", field+".kill_after",
				fmt.Sprintf("timeout %s without kill_after leaves timed-out commands running", q.Timeout))
		case q.Timeout > 0 && q.KillAfter > q.Timeout:
			d.addWarning(r, "timeouts", field+".kill_after",
				fmt.Sprintf("kill_after %s exceeds timeout %s; the next task may start while this one still runs",
					q.KillAfter, q.Timeout))
		}
		if q.MaxQueueTime > 0 && q.MaxQueueTime < time.Second {
			d.addWarning(r, "timeouts", field+".max_queue_time",
				fmt.Sprintf("max_queue_time %s is very short (< 1s)", q.MaxQueueTime))
		}
	}
}

func (d *Doctor) warnRetryPolicy(r *Result) {
	for _, name := range d.cfg.QueueNames() {
		q := d.cfg.Queues[name]
		field := fmt.Sprintf("queues.%s", name)
		failure := q.Failure
		if failure == "" {
			failure = "ignore"
		}
		if failure != "ignore" && q.RetryCount == 0 {
			d.addWarning(r, "retry", field+".retry_count",
				fmt.Sprintf("failure %q with retry_count 0 never retries", failure))
		}
		if failure == "ignore" && (q.RetryCount > 0 || q.RetryInterval > 0) {
			d.addWarning(r, "retry", field+".failure",
				"retry_count and retry_interval have no effect with failure ignore")
		}
	}
}

// warnExposedAPI flags an API listening beyond loopback.
func (d *Doctor) warnExposedAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("api listens on %q, reachable beyond this host", d.cfg.API.Listen))
	}
	if len(d.cfg.API.APIKey) < 16 {
		d.addWarning(r, "api", "api.api_key", "api_key is shorter than 16 bytes")
	}
}

// warnSharedOwners flags an owner named after a different queue. Owners and
// queue names live in separate namespaces, which reads as a typo.
func (d *Doctor) warnSharedOwners(r *Result) {
	for _, name := range d.cfg.QueueNames() {
		owner := d.cfg.Queues[name].OwnerOrDefault(name)
		if owner == name {
			continue
		}
		if _, clash := d.cfg.Queues[owner]; clash {
			d.addWarning(r, "owners", fmt.Sprintf("queues.%s.owner", name),
				fmt.Sprintf("owner %q is also a queue name; the two are unrelated", owner))
		}
	}
}

// FormatHuman returns a human-readable lint report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}
