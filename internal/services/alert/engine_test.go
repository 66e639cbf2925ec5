package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureNotifier struct {
	mu    sync.Mutex
	notes []capturedNote
}

type capturedNote struct {
	accountID uuid.UUID
	title     string
	body      string
}

func (c *captureNotifier) Notify(ctx context.Context, accountID uuid.UUID, title, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, capturedNote{accountID: accountID, title: title, body: body})
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}

func newTestEngine(t *testing.T) (*Engine, *captureNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	notifier := &captureNotifier{}
	engine := NewEngine(&Config{
		Redis:    client,
		Notifier: notifier,
		Logger:   zap.NewNop(),
		DedupTTL: time.Minute,
	})
	return engine, notifier, mr
}

func TestCheckBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("balance above all thresholds stays silent", func(t *testing.T) {
		engine, notifier, _ := newTestEngine(t)

		require.NoError(t, engine.CheckBalance(ctx, uuid.New(), 500))
		assert.Equal(t, 0, notifier.count())
	})

	t.Run("fires the tightest crossed threshold", func(t *testing.T) {
		engine, notifier, _ := newTestEngine(t)
		id := uuid.New()

		require.NoError(t, engine.CheckBalance(ctx, id, 15))
		require.Equal(t, 1, notifier.count())
		assert.Equal(t, "Balance running low", notifier.notes[0].title)
		assert.Contains(t, notifier.notes[0].body, "15 credits")
	})

	t.Run("exhausted balance uses the exhaustion message", func(t *testing.T) {
		engine, notifier, _ := newTestEngine(t)
		id := uuid.New()

		require.NoError(t, engine.CheckBalance(ctx, id, 0))
		require.Equal(t, 1, notifier.count())
		assert.Equal(t, "Balance exhausted", notifier.notes[0].title)
	})

	t.Run("repeat crossings inside the window are suppressed", func(t *testing.T) {
		engine, notifier, _ := newTestEngine(t)
		id := uuid.New()

		require.NoError(t, engine.CheckBalance(ctx, id, 90))
		require.NoError(t, engine.CheckBalance(ctx, id, 80))
		require.NoError(t, engine.CheckBalance(ctx, id, 70))
		assert.Equal(t, 1, notifier.count())
	})

	t.Run("distinct thresholds alert independently", func(t *testing.T) {
		engine, notifier, _ := newTestEngine(t)
		id := uuid.New()

		require.NoError(t, engine.CheckBalance(ctx, id, 90))
		require.NoError(t, engine.CheckBalance(ctx, id, 10))
		require.NoError(t, engine.CheckBalance(ctx, id, 0))
		assert.Equal(t, 3, notifier.count())
	})

	t.Run("dedup expires with the window", func(t *testing.T) {
		engine, notifier, mr := newTestEngine(t)
		id := uuid.New()

		require.NoError(t, engine.CheckBalance(ctx, id, 90))
		mr.FastForward(2 * time.Minute)
		require.NoError(t, engine.CheckBalance(ctx, id, 85))
		assert.Equal(t, 2, notifier.count())
	})

	t.Run("recovery clears dedup so the next dip alerts", func(t *testing.T) {
		engine, notifier, _ := newTestEngine(t)
		id := uuid.New()

		require.NoError(t, engine.CheckBalance(ctx, id, 90))
		require.NoError(t, engine.CheckBalance(ctx, id, 300))
		require.NoError(t, engine.CheckBalance(ctx, id, 90))
		assert.Equal(t, 2, notifier.count())
	})

	t.Run("separate accounts do not share dedup state", func(t *testing.T) {
		engine, notifier, _ := newTestEngine(t)

		require.NoError(t, engine.CheckBalance(ctx, uuid.New(), 90))
		require.NoError(t, engine.CheckBalance(ctx, uuid.New(), 90))
		assert.Equal(t, 2, notifier.count())
	})

	t.Run("without redis every crossing fires", func(t *testing.T) {
		notifier := &captureNotifier{}
		engine := NewEngine(&Config{Notifier: notifier, Logger: zap.NewNop()})
		id := uuid.New()

		require.NoError(t, engine.CheckBalance(ctx, id, 90))
		require.NoError(t, engine.CheckBalance(ctx, id, 80))
		assert.Equal(t, 2, notifier.count())
	})

	t.Run("custom thresholds are sorted before use", func(t *testing.T) {
		notifier := &captureNotifier{}
		engine := NewEngine(&Config{
			Notifier:   notifier,
			Logger:     zap.NewNop(),
			Thresholds: []int64{50, 500, 5},
		})
		id := uuid.New()

		require.NoError(t, engine.CheckBalance(ctx, id, 4))
		require.Equal(t, 1, notifier.count())
		assert.Contains(t, notifier.notes[0].body, "4 credits")
	})
}
