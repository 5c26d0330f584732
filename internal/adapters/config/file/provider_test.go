package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/promptlink-gateway/internal/pkg/config"
)

const initialConfig = `
server:
  port: 9090
ratelimit:
  enabled: true
  requests_per_second: 2
  burst: 4
`

const updatedConfig = `
server:
  port: 9090
ratelimit:
  enabled: true
  requests_per_second: 20
  burst: 40
ledger:
  plans:
    - id: free
      name: Free
      credits: 50
      daily_limit: 50
`

func TestNewProvider_RequiresPath(t *testing.T) {
	_, err := NewProvider("", nil)
	assert.Error(t, err)
}

func TestProvider_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(initialConfig), 0o600))

	p, err := NewProvider(path, nil)
	require.NoError(t, err)

	cfg, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.RateLimit.Burst)
	assert.Same(t, cfg, p.Current())
}

func TestProvider_LoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	p, err := NewProvider(path, nil)
	require.NoError(t, err)

	_, err = p.Load(context.Background())
	assert.Error(t, err)
}

func TestProvider_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(initialConfig), 0o600))

	p, err := NewProvider(path, nil)
	require.NoError(t, err)
	_, err = p.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		last *config.Config
	)
	require.NoError(t, p.Watch(ctx, func(cfg *config.Config) {
		mu.Lock()
		last = cfg
		mu.Unlock()
	}))

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(updatedConfig), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && last.RateLimit.Burst == 40
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, last.Ledger.Plans, 1)
	assert.EqualValues(t, 50, last.Ledger.Plans[0].DailyLimit)
	assert.Equal(t, 40, p.Current().RateLimit.Burst)
}
