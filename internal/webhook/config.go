package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/lanes/internal/config"
)

// FromConfig converts config.WebhooksConfig to webhook.Config, resolving
// endpoint owners from the queue definitions and parsing max body sizes.
func FromConfig(wc *config.WebhooksConfig, queues map[string]config.QueueConfig) (Config, error) {
	if wc == nil {
		return Config{}, fmt.Errorf("webhooks config is nil")
	}

	cfg := Config{
		Listen:    wc.Listen,
		Endpoints: make([]EndpointConfig, len(wc.Endpoints)),
	}

	for i, ep := range wc.Endpoints {
		q, ok := queues[ep.Queue]
		if !ok {
			return Config{}, fmt.Errorf("webhook endpoint %q: unknown queue %q", ep.Path, ep.Queue)
		}
		if ep.Secret == "" {
			return Config{}, fmt.Errorf("webhook endpoint %q: no secret configured", ep.Path)
		}

		maxBodySize, err := parseMaxBodySize(ep.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook endpoint %q: invalid max_body_size %q: %w", ep.Path, ep.MaxBodySize, err)
		}

		owner := ep.Owner
		if owner == "" {
			owner = q.OwnerOrDefault(ep.Queue)
		}
		header := ep.SignatureHeader
		if header == "" {
			header = DefaultSignatureHeader
		}

		cfg.Endpoints[i] = EndpointConfig{
			Path:            ep.Path,
			Queue:           ep.Queue,
			Owner:           owner,
			Secret:          ep.Secret,
			SignatureHeader: header,
			MaxBodySize:     maxBodySize,
			RateLimit:       ep.RateLimit,
			RateBurst:       ep.RateBurst,
		}
	}

	return cfg, nil
}

// parseMaxBodySize parses size strings like "1MB", "64KB", "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30}} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.mult
			upper = strings.TrimSuffix(upper, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
