package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/lanes/internal/config"
	"github.com/mattjoyce/lanes/internal/queue"
	"github.com/mattjoyce/lanes/internal/registry"
)

// fakePusher records pushes onto a real, never-started dispatcher.
type fakePusher struct {
	t      *testing.T
	err    error
	owner  string
	id     string
	args   []any
	pushed int
}

func (f *fakePusher) Push(owner, id string, args []any) (*queue.Task, error) {
	f.pushed++
	f.owner, f.id, f.args = owner, id, args
	if f.err != nil {
		return nil, f.err
	}
	d, err := queue.New(queue.Config{
		Owner: owner,
		ID:    id,
		Operation: func(ctx context.Context, args ...any) (any, error) {
			return nil, nil
		},
		Options: queue.NewOptions(),
	})
	if err != nil {
		f.t.Fatalf("queue.New: %v", err)
	}
	f.t.Cleanup(d.Clear)
	return d.Push(args...), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, p Pusher, maxBody int64) http.Handler {
	t.Helper()
	return New(Config{
		Listen: "127.0.0.1:0",
		Endpoints: []EndpointConfig{{
			Path:            "/hooks/deploy",
			Queue:           "deploy",
			Owner:           "ops",
			Secret:          "test-secret",
			SignatureHeader: "X-Hub-Signature-256",
			MaxBodySize:     maxBody,
		}},
	}, p, testLogger()).Handler()
}

func post(h http.Handler, path string, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if sig != "" {
		req.Header.Set("X-Hub-Signature-256", sig)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhook_ValidSignature(t *testing.T) {
	p := &fakePusher{t: t}
	h := newTestServer(t, p, 0)
	body := []byte(`{"env":"prod","level":3}`)

	rec := post(h, "/hooks/deploy", body, sign(body, "test-secret"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var resp TriggerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TaskID == 0 || resp.Ref == "" {
		t.Errorf("response missing task identity: %+v", resp)
	}
	if resp.Status != queue.StatusQueuing {
		t.Errorf("status = %q, want %q", resp.Status, queue.StatusQueuing)
	}

	if p.owner != "ops" || p.id != "deploy" {
		t.Errorf("pushed to %s/%s, want ops/deploy", p.owner, p.id)
	}
	if len(p.args) != 1 {
		t.Fatalf("args = %v, want one payload", p.args)
	}
	payload, ok := p.args[0].(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want map", p.args[0])
	}
	if payload["env"] != "prod" || payload["level"] != json.Number("3") {
		t.Errorf("payload = %v", payload)
	}
}

func TestHandleWebhook_NonJSONBodyPassesString(t *testing.T) {
	p := &fakePusher{t: t}
	h := newTestServer(t, p, 0)
	body := []byte("ref=main")

	rec := post(h, "/hooks/deploy", body, sign(body, "test-secret"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(p.args) != 1 || p.args[0] != "ref=main" {
		t.Errorf("args = %v, want [ref=main]", p.args)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	p := &fakePusher{t: t}
	h := newTestServer(t, p, 0)
	body := []byte(`{"env":"prod"}`)

	rec := post(h, "/hooks/deploy", body, sign(body, "wrong-secret"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "forbidden" {
		t.Errorf("error = %q, want generic forbidden", resp.Error)
	}
	if p.pushed != 0 {
		t.Error("task pushed despite bad signature")
	}
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	p := &fakePusher{t: t}
	h := newTestServer(t, p, 0)

	rec := post(h, "/hooks/deploy", []byte(`{}`), "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if p.pushed != 0 {
		t.Error("task pushed without signature")
	}
}

func TestHandleWebhook_BodyTooLarge(t *testing.T) {
	p := &fakePusher{t: t}
	h := newTestServer(t, p, 16)
	body := []byte(strings.Repeat("x", 17))

	rec := post(h, "/hooks/deploy", body, sign(body, "test-secret"))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if p.pushed != 0 {
		t.Error("task pushed despite oversize body")
	}
}

func TestHandleWebhook_UnknownPath(t *testing.T) {
	h := newTestServer(t, &fakePusher{t: t}, 0)
	body := []byte(`{}`)

	rec := post(h, "/hooks/other", body, sign(body, "test-secret"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleWebhook_PushErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"registry closed", registry.ErrClosed, http.StatusServiceUnavailable},
		{"unbound", registry.ErrUnbound, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakePusher{t: t, err: tt.err}, 0)
			body := []byte(`{}`)
			rec := post(h, "/hooks/deploy", body, sign(body, "test-secret"))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleWebhook_RateLimited(t *testing.T) {
	p := &fakePusher{t: t}
	h := New(Config{Endpoints: []EndpointConfig{{
		Path:      "/hooks/deploy",
		Queue:     "deploy",
		Owner:     "ops",
		Secret:    "test-secret",
		RateLimit: 0.001,
		RateBurst: 1,
	}}}, p, testLogger()).Handler()
	body := []byte(`{}`)

	if rec := post(h, "/hooks/deploy", body, sign(body, "test-secret")); rec.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if rec := post(h, "/hooks/deploy", body, sign(body, "test-secret")); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec := post(h, "/hooks/deploy", body, "sha256=00"); rec.Code != http.StatusForbidden {
		t.Errorf("unsigned status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if p.pushed != 1 {
		t.Errorf("pushed = %d, want 1", p.pushed)
	}
}

func TestHandleWebhook_NumericPriorityOrder(t *testing.T) {
	opts, err := config.QueueConfig{Priority: "-level"}.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	op := func(ctx context.Context, args ...any) (any, error) {
		level := args[0].(map[string]any)["level"].(json.Number).String()
		mu.Lock()
		order = append(order, level)
		first := len(order) == 1
		mu.Unlock()
		if first {
			started <- struct{}{}
			<-release
		}
		return nil, nil
	}

	reg := registry.New(context.Background(), nil)
	t.Cleanup(func() { _ = reg.Close() })
	table := registry.NewTable(reg)
	if err := table.Bind("deploy", op, opts...); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	h := New(Config{Endpoints: []EndpointConfig{{
		Path:   "/hooks/deploy",
		Queue:  "deploy",
		Owner:  "ops",
		Secret: "test-secret",
	}}}, registry.Service{Registry: reg, Table: table}, testLogger()).Handler()

	send := func(body string) {
		t.Helper()
		b := []byte(body)
		if rec := post(h, "/hooks/deploy", b, sign(b, "test-secret")); rec.Code != http.StatusAccepted {
			t.Fatalf("push %s: status = %d", body, rec.Code)
		}
	}

	send(`{"level":1}`)
	<-started
	for _, body := range []string{`{"level":9}`, `{"level":2}`, `{"level":10}`} {
		send(body)
	}
	close(release)

	d, ok := reg.Lookup("ops", "deploy")
	if !ok {
		t.Fatal("dispatcher not registered")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.WaitForIdle(ctx); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got, want := strings.Join(order, ","), "1,10,9,2"; got != want {
		t.Errorf("execution order = %s, want %s", got, want)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	s := New(Config{Endpoints: []EndpointConfig{{Path: "/h", Queue: "q", Secret: "s"}}}, &fakePusher{t: t}, testLogger())
	ep := s.endpoints["/h"]
	if ep == nil {
		t.Fatal("endpoint not registered")
	}
	if ep.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("MaxBodySize = %d, want %d", ep.MaxBodySize, DefaultMaxBodySize)
	}
	if ep.SignatureHeader != DefaultSignatureHeader {
		t.Errorf("SignatureHeader = %q, want %q", ep.SignatureHeader, DefaultSignatureHeader)
	}
}

func TestStart_ReturnsNilOnCancel(t *testing.T) {
	s := New(Config{Listen: "127.0.0.1:0"}, &fakePusher{t: t}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() = %v, want nil", err)
	}
}

func TestFromConfig(t *testing.T) {
	queues := map[string]config.QueueConfig{
		"deploy": {Owner: "ops", Command: []string{"deploy.sh"}},
		"notify": {Command: []string{"notify.sh"}},
	}

	cfg, err := FromConfig(&config.WebhooksConfig{
		Listen: "127.0.0.1:8081",
		Endpoints: []config.WebhookEndpoint{
			{Path: "/hooks/deploy", Queue: "deploy", Secret: "s1", MaxBodySize: "64KB"},
			{Path: "/hooks/notify", Queue: "notify", Owner: "alice", Secret: "s2", SignatureHeader: "X-Sig"},
		},
	}, queues)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if cfg.Listen != "127.0.0.1:8081" || len(cfg.Endpoints) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	deploy := cfg.Endpoints[0]
	if deploy.Owner != "ops" || deploy.MaxBodySize != 64*1024 || deploy.SignatureHeader != DefaultSignatureHeader {
		t.Errorf("deploy endpoint = %+v", deploy)
	}
	notify := cfg.Endpoints[1]
	if notify.Owner != "alice" || notify.MaxBodySize != DefaultMaxBodySize || notify.SignatureHeader != "X-Sig" {
		t.Errorf("notify endpoint = %+v", notify)
	}
}

func TestFromConfig_Errors(t *testing.T) {
	queues := map[string]config.QueueConfig{"deploy": {Command: []string{"deploy.sh"}}}
	tests := []struct {
		name string
		ep   config.WebhookEndpoint
	}{
		{"unknown queue", config.WebhookEndpoint{Path: "/h", Queue: "missing", Secret: "s"}},
		{"no secret", config.WebhookEndpoint{Path: "/h", Queue: "deploy"}},
		{"bad size", config.WebhookEndpoint{Path: "/h", Queue: "deploy", Secret: "s", MaxBodySize: "lots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(&config.WebhooksConfig{Endpoints: []config.WebhookEndpoint{tt.ep}}, queues)
			if err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := FromConfig(nil, queues); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"2048", 2048, false},
		{"64kb", 64 << 10, false},
		{"1MB", 1 << 20, false},
		{"2GB", 2 << 30, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMaxBodySize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseMaxBodySize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseMaxBodySize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
