package backend

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/ledger"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type capture struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (c *capture) Publish(_ context.Context, evt ledger.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
	assert.NoError(t, Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}.Validate())
	assert.Error(t, Config{Type: "sheets"}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: MemoryBackend, AMQPURL: "amqp://x"}.Validate())
	assert.Equal(t, []string{"sqlite", "memory"}, GetBackendTypeStrings())
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	app := &config.Config{
		DataBackend:          "memory",
		AMQPExchange:         "tally",
		CategoryBudgets:      `{"groceries": 10}`,
		SummaryCacheSize:     5,
		SummaryCacheTTL:      time.Minute,
		MaxUploadBytes:       100,
		ImportCheckPersisted: true,
	}
	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, MemoryBackend, cfg.Type)
	assert.Equal(t, 5, cfg.CacheSize)
	assert.Equal(t, int64(100), cfg.MaxUploadBytes)
	assert.True(t, cfg.CheckPersisted)
	groceries, ok := cfg.Budgets.Lookup(core.Groceries)
	require.True(t, ok)
	assert.Equal(t, "10", groceries.String())

	app.DataBackend = "sheets"
	_, err = FromAppConfig(app)
	assert.Error(t, err)

	app.DataBackend = "memory"
	app.CategoryBudgets = `{"gifts": 1}`
	_, err = FromAppConfig(app)
	assert.Error(t, err)
}

func TestCreateBackend(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  func(t *testing.T) Config
	}{
		{"memory", func(*testing.T) Config { return Config{Type: MemoryBackend} }},
		{"sqlite", func(t *testing.T) Config {
			return Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "nested", "tally.db")}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			pub := &capture{}
			cfg := tc.cfg(t)
			cfg.Clock = func() time.Time { return now }
			cfg.Publisher = pub
			cfg.CacheSize = 10
			cfg.CacheTTL = time.Hour

			res, err := NewFactory(nil).CreateBackend(ctx, cfg)
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, res.Cleanup()) })
			b := res.Backend
			require.NoError(t, b.Ping(ctx))
			assert.Equal(t, 7, b.Budgets.Len())

			before, err := b.Dashboard.Overview(ctx, 1, 2025, 6)
			require.NoError(t, err)
			assert.Zero(t, before.Total)

			_, err = b.Expenses.Create(ctx, 1, decimal.RequireFromString("320"), "market", core.NewDate(2025, 6, 2), core.Groceries)
			require.NoError(t, err)

			after, err := b.Dashboard.Overview(ctx, 1, 2025, 6)
			require.NoError(t, err)
			assert.InDelta(t, 320.0, after.Total, 1e-9)
			require.Len(t, after.Alerts, 1)
			assert.Equal(t, core.AlertDanger, after.Alerts[0].Type)

			res2, err := b.Importer.Import(ctx, 1, strings.NewReader("2025-06-03,2,bus,transport\n"))
			require.NoError(t, err)
			assert.Equal(t, 1, res2.Imported)

			n, err := b.Expenses.Count(ctx, 1, 2025, 6)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.Len(t, pub.events, 2)
			assert.Equal(t, ledger.EventExpenseCreated, pub.events[0].Type)
			assert.Equal(t, ledger.EventImportCompleted, pub.events[1].Type)
		})
	}
}
