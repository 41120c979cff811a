package railsconfig_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railscron/railscron/railsconfig"
)

func TestDefaultsMatchSpec(t *testing.T) {
	cfg := railsconfig.Default()
	require.Equal(t, 5*time.Second, cfg.TickInterval)
	require.Equal(t, 120*time.Second, cfg.WindowLookback)
	require.Equal(t, time.Duration(0), cfg.WindowLookahead)
	require.Equal(t, 60*time.Second, cfg.LeaseTTL)
	require.Equal(t, "railscron", cfg.Namespace)
	require.False(t, cfg.EnableAudit)
	require.True(t, cfg.EnableDispatchRecovery)
	require.Equal(t, 86400*time.Second, cfg.RecoveryWindow)
	require.Equal(t, 5*time.Second, cfg.RecoveryStartupJitter)
	require.Empty(t, cfg.Validate())
}

func TestValidateReportsEveryViolation(t *testing.T) {
	cfg := railsconfig.New(
		railsconfig.WithTickInterval(0),
		railsconfig.WithNamespace(""),
		railsconfig.WithLeaseTTL(-1),
		railsconfig.WithRecoveryWindow(0),
	)
	violations := cfg.Validate()
	require.GreaterOrEqual(t, len(violations), 4)
}

func TestMustValidateReturnsConfigurationError(t *testing.T) {
	cfg := railsconfig.New(railsconfig.WithTickInterval(0))
	err := cfg.MustValidate()
	require.Error(t, err)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg := railsconfig.New(
		railsconfig.WithNamespace("acme"),
		railsconfig.WithTickInterval(time.Second),
	)
	require.Equal(t, "acme", cfg.Namespace)
	require.Equal(t, time.Second, cfg.TickInterval)
}
