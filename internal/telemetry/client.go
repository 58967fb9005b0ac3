package telemetry

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/posthog/posthog-go"
)

// Client sends events. Track never blocks on the network.
type Client interface {
	Track(event string, properties map[string]any)
	Close() error
}

// Properties is a type alias for event properties.
type Properties = map[string]any

// enqueuer is the part of the PostHog client we use.
type enqueuer interface {
	io.Closer
	Enqueue(msg posthog.Message) error
}

// PostHogClient wraps the PostHog SDK.
type PostHogClient struct {
	client      enqueuer
	config      *Config
	version     string
	mu          sync.RWMutex
	initialized bool
}

// ClientConfig holds configuration for initializing the telemetry client.
type ClientConfig struct {
	APIKey  string
	Version string
	Config  *Config
	// Endpoint is an optional self-hosted PostHog endpoint.
	Endpoint string
}

// NewPostHogClient creates a client. An empty APIKey or nil Config yields an
// uninitialized client whose Track does nothing.
func NewPostHogClient(cfg ClientConfig) (*PostHogClient, error) {
	if cfg.APIKey == "" || cfg.Config == nil {
		return &PostHogClient{config: cfg.Config, version: cfg.Version}, nil
	}

	phConfig := posthog.Config{
		// A cycle run sends a handful of events and exits.
		BatchSize: 10,
		Interval:  1 * time.Second,
		Logger:    quietPostHogLogger{},
	}
	if cfg.Endpoint != "" {
		phConfig.Endpoint = cfg.Endpoint
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, phConfig)
	if err != nil {
		return nil, err
	}
	return &PostHogClient{
		client:      client,
		config:      cfg.Config,
		version:     cfg.Version,
		initialized: true,
	}, nil
}

func newPostHogClientWithEnqueuer(enq enqueuer, cfg *Config, version string) *PostHogClient {
	return &PostHogClient{
		client:      enq,
		config:      cfg,
		version:     version,
		initialized: true,
	}
}

// Track enqueues an event. No-op if the client is uninitialized or consent
// is missing.
func (c *PostHogClient) Track(event string, properties map[string]any) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized || c.config == nil || !c.config.IsEnabled() {
		return
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}
	props.Set("os", runtime.GOOS)
	props.Set("arch", runtime.GOARCH)
	props.Set("cli_version", c.version)
	// No person profiles: events stay anonymous.
	props.Set("$process_person_profile", false)

	_ = c.client.Enqueue(posthog.Capture{
		DistinctId: c.config.AnonymousID,
		Event:      event,
		Properties: props,
	})
}

// Close flushes pending events.
func (c *PostHogClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// NoopClient drops every event.
type NoopClient struct{}

func (c *NoopClient) Track(event string, properties map[string]any) {}
func (c *NoopClient) Close() error                                  { return nil }

// NewNoopClient returns a client that does nothing.
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

// New returns the client the configuration asks for: a PostHog client when
// telemetry is enabled, keyed and consented to, a NoopClient otherwise.
func New(tc config.TelemetryConfig, version string) (Client, error) {
	if !tc.Enabled || tc.APIKey == "" {
		return NewNoopClient(), nil
	}
	consent, err := Load()
	if err != nil {
		return NewNoopClient(), err
	}
	if !consent.IsEnabled() {
		return NewNoopClient(), nil
	}
	client, err := NewPostHogClient(ClientConfig{
		APIKey:   tc.APIKey,
		Version:  version,
		Config:   consent,
		Endpoint: tc.Endpoint,
	})
	if err != nil {
		return NewNoopClient(), err
	}
	return client, nil
}

// quietPostHogLogger keeps transport warnings out of CLI output.
type quietPostHogLogger struct{}

func (quietPostHogLogger) Debugf(string, ...interface{}) {}
func (quietPostHogLogger) Logf(string, ...interface{})   {}
func (quietPostHogLogger) Warnf(string, ...interface{})  {}
func (quietPostHogLogger) Errorf(string, ...interface{}) {}
