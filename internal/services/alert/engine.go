package alert

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drople/metering/internal/services/billing"
)

// DefaultThresholds are the balance levels (credits) that trigger an alert
// when crossed downward.
var DefaultThresholds = []int64{100, 20, 0}

const defaultDedupWindow = 24 * time.Hour

// Engine evaluates post-commit balances against configured thresholds and
// emits a notification when one is crossed. A redis SetNX key suppresses
// repeat alerts for the same account and threshold within the dedup window;
// without a redis client every crossing fires. Everything here is
// best-effort from the billing engine's perspective.
type Engine struct {
	redis      *redis.Client
	notifier   billing.Notifier
	logger     *zap.Logger
	thresholds []int64
	dedupTTL   time.Duration
}

type Config struct {
	Redis      *redis.Client
	Notifier   billing.Notifier
	Logger     *zap.Logger
	Thresholds []int64
	DedupTTL   time.Duration
}

func NewEngine(cfg *Config) *Engine {
	thresholds := cfg.Thresholds
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	thresholds = append([]int64(nil), thresholds...)
	sort.Slice(thresholds, func(i, j int) bool { return thresholds[i] < thresholds[j] })

	ttl := cfg.DedupTTL
	if ttl == 0 {
		ttl = defaultDedupWindow
	}

	return &Engine{
		redis:      cfg.Redis,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
		thresholds: thresholds,
		dedupTTL:   ttl,
	}
}

// CheckBalance fires at most one alert per call: the tightest threshold the
// balance sits at or below. A balance above every threshold clears the
// account's dedup keys so the next dip alerts again.
func (e *Engine) CheckBalance(ctx context.Context, accountID uuid.UUID, balance int64) error {
	crossed := int64(-1)
	for _, th := range e.thresholds {
		if balance <= th {
			crossed = th
			break
		}
	}

	if crossed < 0 {
		return e.clearDedup(ctx, accountID)
	}

	fire, err := e.shouldFire(ctx, accountID, crossed)
	if err != nil {
		return err
	}
	if !fire {
		return nil
	}

	e.logger.Warn("balance threshold crossed",
		zap.String("account_id", accountID.String()),
		zap.Int64("balance", balance),
		zap.Int64("threshold", crossed))

	if e.notifier != nil {
		title, body := alertMessage(balance, crossed)
		if err := e.notifier.Notify(ctx, accountID, title, body); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) shouldFire(ctx context.Context, accountID uuid.UUID, threshold int64) (bool, error) {
	if e.redis == nil {
		return true, nil
	}
	ok, err := e.redis.SetNX(ctx, e.dedupKey(accountID, threshold), 1, e.dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("alert dedup check failed: %w", err)
	}
	return ok, nil
}

func (e *Engine) clearDedup(ctx context.Context, accountID uuid.UUID) error {
	if e.redis == nil {
		return nil
	}
	keys := make([]string, 0, len(e.thresholds))
	for _, th := range e.thresholds {
		keys = append(keys, e.dedupKey(accountID, th))
	}
	return e.redis.Del(ctx, keys...).Err()
}

func (e *Engine) dedupKey(accountID uuid.UUID, threshold int64) string {
	return fmt.Sprintf("alert:balance:%s:%d", accountID, threshold)
}

func alertMessage(balance, threshold int64) (string, string) {
	if threshold == 0 {
		return "Balance exhausted",
			"Your account has no credits left. AI features are paused until you top up."
	}
	return "Balance running low",
		fmt.Sprintf("Your account balance dropped to %d credits. Top up soon to avoid interruption.", balance)
}
