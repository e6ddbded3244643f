package webhook

import (
	"github.com/mattjoyce/lanes/internal/queue"
)

// Pusher accepts tasks for a bound queue. registry.Service implements it.
type Pusher interface {
	Push(owner, id string, args []any) (*queue.Task, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/webhook/github")
	Path string

	// Queue and Owner identify the dispatcher that receives the body.
	Queue string
	Owner string

	// Secret is the HMAC secret for signature verification
	Secret string

	// SignatureHeader is the HTTP header containing the HMAC signature
	// Examples: "X-Hub-Signature-256" (GitHub), "X-Signature"
	SignatureHeader string

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64

	// RateLimit is the sustained verified requests per second; zero disables
	// limiting. RateBurst defaults to 1.
	RateLimit float64
	RateBurst int
}

// TriggerResponse is the JSON response for successful webhook triggers.
type TriggerResponse struct {
	TaskID int64        `json:"task_id"`
	Ref    string       `json:"ref"`
	Status queue.Status `json:"status"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSignatureHeader = "X-Hub-Signature-256"
)
