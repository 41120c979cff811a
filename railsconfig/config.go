// Package railsconfig holds the coordination kernel's typed, validated
// configuration. It is populated with functional options rather than a
// config file or CLI flags — parsing configuration files/flags is
// explicitly out of this system's scope; the demo host in
// cmd/railscrond layers github.com/jessevdk/go-flags on top of this
// package instead.
package railsconfig

import (
	"time"

	"github.com/google/uuid"

	"github.com/railscron/railscron/railsaudit"
	"github.com/railscron/railscron/railserr"
	"github.com/railscron/railscron/railslease"
	"github.com/railscron/railscron/railslog"
)

// Config carries every tunable of the coordination kernel, with the
// defaults from spec.md §4.9.
type Config struct {
	TickInterval           time.Duration
	WindowLookback         time.Duration
	WindowLookahead        time.Duration
	LeaseTTL               time.Duration
	Namespace              string
	LeaseBackend           railslease.Backend
	AuditBackend           railsaudit.Registry
	EnableAudit            bool
	EnableDispatchRecovery bool
	RecoveryWindow         time.Duration
	RecoveryStartupJitter  time.Duration
	TimeZone               *time.Location
	Logger                 railslog.Logger
	NodeID                 string
}

// Default returns a Config populated with spec.md §4.9's defaults. A
// random NodeID is assigned via github.com/google/uuid so multiple
// processes on the fleet never collide in audit records.
func Default() Config {
	return Config{
		TickInterval:           5 * time.Second,
		WindowLookback:         120 * time.Second,
		WindowLookahead:        0,
		LeaseTTL:               60 * time.Second,
		Namespace:              "railscron",
		EnableAudit:            false,
		EnableDispatchRecovery: true,
		RecoveryWindow:         86400 * time.Second,
		RecoveryStartupJitter:  5 * time.Second,
		TimeZone:               time.Local,
		Logger:                 railslog.Nop{},
		NodeID:                 uuid.NewString(),
	}
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithTickInterval overrides the tick period.
func WithTickInterval(d time.Duration) Option { return func(c *Config) { c.TickInterval = d } }

// WithWindowLookback overrides how far into the past a tick still
// considers firings dispatchable.
func WithWindowLookback(d time.Duration) Option { return func(c *Config) { c.WindowLookback = d } }

// WithWindowLookahead overrides how far into the future a tick
// enumerates (without dispatching) firings.
func WithWindowLookahead(d time.Duration) Option { return func(c *Config) { c.WindowLookahead = d } }

// WithLeaseTTL overrides the lease TTL passed to Acquire.
func WithLeaseTTL(d time.Duration) Option { return func(c *Config) { c.LeaseTTL = d } }

// WithNamespace overrides the key-derivation namespace.
func WithNamespace(ns string) Option { return func(c *Config) { c.Namespace = ns } }

// WithLeaseBackend installs the distributed lease backend. Leaving it
// unset is equivalent to always-acquire.
func WithLeaseBackend(b railslease.Backend) Option { return func(c *Config) { c.LeaseBackend = b } }

// WithAuditBackend installs the dispatch audit registry.
func WithAuditBackend(r railsaudit.Registry) Option { return func(c *Config) { c.AuditBackend = r } }

// WithEnableAudit toggles whether dispatches are logged to AuditBackend
// and whether AuditRegistry() exposes it.
func WithEnableAudit(enabled bool) Option { return func(c *Config) { c.EnableAudit = enabled } }

// WithEnableDispatchRecovery toggles the startup recovery procedure.
func WithEnableDispatchRecovery(enabled bool) Option {
	return func(c *Config) { c.EnableDispatchRecovery = enabled }
}

// WithRecoveryWindow overrides how far back startup recovery replays.
func WithRecoveryWindow(d time.Duration) Option { return func(c *Config) { c.RecoveryWindow = d } }

// WithRecoveryStartupJitter overrides the uniform random startup delay
// used to desynchronize fleet restarts.
func WithRecoveryStartupJitter(d time.Duration) Option {
	return func(c *Config) { c.RecoveryStartupJitter = d }
}

// WithTimeZone overrides the zone the cron evaluator evaluates in.
func WithTimeZone(loc *time.Location) Option { return func(c *Config) { c.TimeZone = loc } }

// WithLogger installs a structured logger.
func WithLogger(l railslog.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithNodeID overrides the generated node identifier recorded on audit
// entries.
func WithNodeID(id string) Option { return func(c *Config) { c.NodeID = id } }

// New builds a Config from Default plus opts.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate returns every violation found, without raising. An empty
// slice means the configuration is valid.
func (c Config) Validate() []string {
	var violations []string
	if c.TickInterval <= 0 {
		violations = append(violations, "tick_interval must be > 0")
	}
	if c.WindowLookback < 0 {
		violations = append(violations, "window_lookback must be >= 0")
	}
	if c.WindowLookahead < 0 {
		violations = append(violations, "window_lookahead must be >= 0")
	}
	if c.LeaseTTL <= 0 {
		violations = append(violations, "lease_ttl must be > 0")
	}
	if c.Namespace == "" {
		violations = append(violations, "namespace must not be empty")
	}
	if c.RecoveryWindow <= 0 {
		violations = append(violations, "recovery_window must be > 0")
	}
	if c.RecoveryStartupJitter < 0 {
		violations = append(violations, "recovery_startup_jitter must be >= 0")
	}
	if c.TimeZone == nil {
		violations = append(violations, "time_zone must be a valid location")
	}
	return violations
}

// MustValidate returns a *railserr.ConfigurationError if Validate found
// any violation, and nil otherwise.
func (c Config) MustValidate() error {
	if violations := c.Validate(); len(violations) > 0 {
		return &railserr.ConfigurationError{Violations: violations}
	}
	return nil
}
