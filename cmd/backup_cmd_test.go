package cmd

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdjellab/mongosnap/internal/config"
)

// newRetryFlagCmd registers the retry flags the way backupCmd does so
// retryPolicy can observe which ones were explicitly passed.
func newRetryFlagCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	t.Cleanup(func() {
		cfg = config.Config{}
		backupRetries = 3
		backupBackoff = 2 * time.Second
	})
	c := &cobra.Command{Use: "backup"}
	c.Flags().IntVar(&backupRetries, "max-retries", 3, "")
	c.Flags().DurationVar(&backupBackoff, "retry-backoff", 2*time.Second, "")
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestRetryPolicyUsesConfiguredValues(t *testing.T) {
	c := newRetryFlagCmd(t)
	cfg.Backup.MaxRetries = 7
	cfg.Backup.RetryBackoff = 250 * time.Millisecond

	policy := retryPolicy(c)

	assert.Equal(t, 7, policy.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 2.0, policy.Multiplier)
}

func TestRetryPolicyFlagsOverrideConfig(t *testing.T) {
	c := newRetryFlagCmd(t, "--max-retries=1", "--retry-backoff=5s")
	cfg.Backup.MaxRetries = 7
	cfg.Backup.RetryBackoff = 250 * time.Millisecond

	policy := retryPolicy(c)

	assert.Equal(t, 1, policy.MaxRetries)
	assert.Equal(t, 5*time.Second, policy.BaseDelay)
}
