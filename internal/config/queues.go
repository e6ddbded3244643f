package config

import (
	"fmt"
	"sort"

	"github.com/mattjoyce/lanes/internal/queue"
)

// OwnerOrDefault returns the registry owner key for the queue named name.
func (q QueueConfig) OwnerOrDefault(name string) string {
	if q.Owner != "" {
		return q.Owner
	}
	return name
}

// Options converts the YAML policy into dispatcher options. Task handles are
// always requested so the API can report task ids.
func (q QueueConfig) Options() ([]queue.Option, error) {
	overflow, err := queue.ParseOverflow(q.Overflow)
	if err != nil {
		return nil, err
	}
	failure, err := queue.ParseFailure(q.Failure)
	if err != nil {
		return nil, err
	}

	opts := []queue.Option{
		queue.WithOverflow(overflow),
		queue.WithRetry(failure, q.RetryCount, q.RetryInterval),
		queue.WithTimeout(q.Timeout),
		queue.WithMaxQueueTime(q.MaxQueueTime),
		queue.WithObjectify(true),
	}
	if q.Length != 0 {
		opts = append(opts, queue.WithLength(q.Length))
	}
	if q.Priority != "" {
		opts = append(opts, queue.WithPriority(queue.ParseSortKey(q.Priority)))
	}
	if q.Default != nil {
		opts = append(opts, queue.WithDefault(q.Default))
	}

	if err := queue.NewOptions(opts...).Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// QueueNames returns the configured queue names in sorted order.
func (c *Config) QueueNames() []string {
	names := make([]string, 0, len(c.Queues))
	for name := range c.Queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateQueue(name string, q QueueConfig) error {
	if name == "" {
		return fmt.Errorf("queues: queue name must not be empty")
	}
	if len(q.Command) == 0 || q.Command[0] == "" {
		return fmt.Errorf("queue %q: command is required", name)
	}
	for i, arg := range q.Command {
		if envVarPattern.MatchString(arg) {
			matches := envVarPattern.FindStringSubmatch(arg)
			return fmt.Errorf("queue %q: command[%d]: environment variable ${%s} is not set", name, i, matches[1])
		}
	}
	if q.KillAfter < 0 {
		return fmt.Errorf("queue %q: kill_after must not be negative", name)
	}
	if s := q.Schedule; s != nil {
		if s.Every <= 0 {
			return fmt.Errorf("queue %q: schedule.every must be positive", name)
		}
		if s.Jitter < 0 || s.MaxOutstanding < 0 {
			return fmt.Errorf("queue %q: schedule.jitter and schedule.max_outstanding must not be negative", name)
		}
	}
	if _, err := q.Options(); err != nil {
		return fmt.Errorf("queue %q: %w", name, err)
	}
	return nil
}
