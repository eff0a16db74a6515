package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-bot/codecoder/internal/audit"
	"github.com/zero-bot/codecoder/internal/config"
	"github.com/zero-bot/codecoder/internal/logging"
)

func TestBindAddress_ForcesLoopbackWhenNotAllowed(t *testing.T) {
	addr := bindAddress("0.0.0.0", 3000, false, &logging.NoOpLogger{})
	assert.Equal(t, "127.0.0.1:3000", addr)
}

func TestBindAddress_HonoursAllowPublicBind(t *testing.T) {
	addr := bindAddress("0.0.0.0", 3000, true, &logging.NoOpLogger{})
	assert.Equal(t, "0.0.0.0:3000", addr)
}

func TestBindAddress_DefaultsEmptyHostToLoopback(t *testing.T) {
	addr := bindAddress("", 3000, false, &logging.NoOpLogger{})
	assert.Equal(t, "127.0.0.1:3000", addr)
}

func TestOpenAuditStore_MemoryModeByDefault(t *testing.T) {
	cfg := config.Default()
	store, err := openAuditStore(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)
	_, ok := store.(*audit.MemoryStore)
	assert.True(t, ok)
}

func TestOpenAuditStore_SQLiteModeWhenPathConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Audit.AuditDBPath = "audit.db"
	store, err := openAuditStore(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)
	_, ok := store.(*audit.SQLiteStore)
	assert.True(t, ok)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel…", truncate("hello", 3))
}

func TestResolvePort_ReturnsConfiguredPortWhenNonZero(t *testing.T) {
	assert.Equal(t, 3000, resolvePort("127.0.0.1", 3000, &logging.NoOpLogger{}))
}

func TestResolvePort_AutoDiscoversWhenZero(t *testing.T) {
	p := resolvePort("127.0.0.1", 0, &logging.NoOpLogger{})
	assert.NotZero(t, p)
}
