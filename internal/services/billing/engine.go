package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drople/metering/internal/models"
)

// AccountStore is the balance boundary. ConditionalDecrement must be atomic
// at the store: the decrement takes effect only if the balance is at least
// minBalance at mutation time, and concurrent decrements never lose
// updates. It reports the number of rows affected and, when a row was
// affected, the post-mutation balance.
type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
	ConditionalDecrement(ctx context.Context, id uuid.UUID, amount, minBalance int64) (affected int64, newBalance int64, err error)
	// Increment applies an unconditional atomic credit and returns the new
	// balance.
	Increment(ctx context.Context, id uuid.UUID, amount int64) (newBalance int64, err error)
}

// EntitlementStore answers whether a sponsor currently covers an account.
type EntitlementStore interface {
	HasActiveGrant(ctx context.Context, accountID, sponsorID uuid.UUID, now time.Time) (bool, error)
}

// UsageEntry is one append-only usage trail record.
type UsageEntry struct {
	AccountID  uuid.UUID
	ConsumerID uuid.UUID
	Amount     int64
	Remaining  int64
	Category   models.UsageCategory
	RawUnits   int64
	ContextID  *uuid.UUID
}

// UsageSink appends usage records. It must only be called after the
// corresponding balance mutation committed, with the balance that mutation
// returned.
type UsageSink interface {
	Record(ctx context.Context, entry UsageEntry) error
}

// Notifier delivers user-facing messages. Fire-and-forget from the engine's
// perspective: failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, title, body string) error
}

// AlertSink receives post-commit balance values for threshold evaluation.
type AlertSink interface {
	CheckBalance(ctx context.Context, accountID uuid.UUID, balance int64) error
}

// Outcome is the terminal state of a charge.
type Outcome string

const (
	OutcomeCommitted    Outcome = "committed"
	OutcomeInsufficient Outcome = "insufficient_balance"
	// OutcomeConflict means a conditional update affected zero rows even
	// though the preceding balance read found the cost covered: another
	// caller consumed the balance in between. The caller owns the retry
	// policy.
	OutcomeConflict Outcome = "concurrent_conflict"
)

// ChargeRequest describes one metered consumption to bill.
type ChargeRequest struct {
	AccountID uuid.UUID
	Units     int64
	Category  models.UsageCategory
	// Multiplier overrides the category's configured rate when positive.
	Multiplier float64
	ContextID  *uuid.UUID
}

// ChargeResult reports the terminal state of a charge together with the
// post-mutation balances of every account that participated.
type ChargeResult struct {
	Outcome  Outcome `json:"outcome"`
	Mode     Mode    `json:"mode"`
	Cost     int64   `json:"cost"`
	RawUnits int64   `json:"raw_units"`

	AccountDeducted  int64 `json:"account_deducted"`
	AccountRemaining int64 `json:"account_remaining"`
	SponsorDeducted  int64 `json:"sponsor_deducted,omitempty"`
	SponsorRemaining int64 `json:"sponsor_remaining,omitempty"`
}

// CreditResult reports a committed balance increase.
type CreditResult struct {
	Added     int64 `json:"added"`
	Remaining int64 `json:"remaining"`
}

// Config wires the engine's collaborators. All stores and sinks are
// injected; the engine keeps no process-wide state.
type Config struct {
	Logger       *zap.Logger
	Accounts     AccountStore
	Entitlements EntitlementStore
	Usage        UsageSink
	Notifier     Notifier
	Alerts       AlertSink

	// UnitsPerCredit defaults to DefaultUnitsPerCredit.
	UnitsPerCredit int64
	// Multipliers maps usage categories to their rate; unlisted categories
	// bill at 1.0.
	Multipliers map[models.UsageCategory]float64
	// StrictSponsorLink rejects charges whose superior link points at a
	// non-sponsor account instead of falling back to normal billing.
	StrictSponsorLink bool
}

// Engine performs atomic, possibly two-account, conditional balance
// mutations with rollback, and keeps the usage trail consistent with the
// balances it mutates.
type Engine struct {
	logger   *zap.Logger
	accounts AccountStore
	usage    UsageSink
	notifier Notifier
	alerts   AlertSink
	resolver *Resolver

	unitsPerCredit int64
	multipliers    map[models.UsageCategory]float64
}

func NewEngine(cfg *Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.UnitsPerCredit <= 0 {
		cfg.UnitsPerCredit = DefaultUnitsPerCredit
	}

	return &Engine{
		logger:         cfg.Logger,
		accounts:       cfg.Accounts,
		usage:          cfg.Usage,
		notifier:       cfg.Notifier,
		alerts:         cfg.Alerts,
		resolver:       NewResolver(cfg.Accounts, cfg.Entitlements, cfg.Logger, cfg.StrictSponsorLink),
		unitsPerCredit: cfg.UnitsPerCredit,
		multipliers:    cfg.Multipliers,
	}
}

// MultiplierFor returns the configured rate for a category, 1.0 when
// unlisted.
func (e *Engine) MultiplierFor(category models.UsageCategory) float64 {
	if m, ok := e.multipliers[category]; ok && m > 0 {
		return m
	}
	return 1.0
}

// Charge converts the metered units into a cost, resolves who pays and
// applies the deduction. Insufficient balance and concurrent conflicts are
// expected outcomes reported in the result; a non-nil error means a store
// fault or, for ErrInconsistent, a failed dual-mode rollback.
func (e *Engine) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	account, err := e.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	strategy, err := e.resolver.Resolve(ctx, account)
	if err != nil {
		return nil, err
	}

	multiplier := req.Multiplier
	if multiplier <= 0 {
		multiplier = e.MultiplierFor(req.Category)
	}
	cost := CostWithGranularity(req.Units, multiplier, e.unitsPerCredit)

	if cost == 0 {
		result := &ChargeResult{
			Outcome:          OutcomeCommitted,
			Mode:             strategy.Mode,
			RawUnits:         req.Units,
			AccountRemaining: account.Balance,
		}
		if strategy.Sponsored() {
			result.SponsorRemaining = strategy.Sponsor.Balance
		}
		return result, nil
	}

	switch strategy.Mode {
	case ModeSponsorOnly:
		return e.chargeSponsorOnly(ctx, account, strategy.Sponsor, cost, req)
	case ModeDual:
		return e.chargeDual(ctx, account, strategy.Sponsor, cost, req)
	default:
		return e.chargeNormal(ctx, account, cost, req)
	}
}

// ChargeOne bills a single credit through the regular pipeline, for
// fixed-price operations that are not metered by tokens.
func (e *Engine) ChargeOne(ctx context.Context, accountID uuid.UUID, category models.UsageCategory, contextID *uuid.UUID) (*ChargeResult, error) {
	return e.Charge(ctx, ChargeRequest{
		AccountID:  accountID,
		Units:      e.unitsPerCredit,
		Category:   category,
		Multiplier: 1.0,
		ContextID:  contextID,
	})
}

// Credit applies an unconditional atomic increase and appends a usage
// record tagged with the given credit category.
func (e *Engine) Credit(ctx context.Context, accountID uuid.UUID, amount int64, category models.UsageCategory) (*CreditResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if !category.IsCredit() {
		category = models.CategoryTopUp
	}

	newBalance, err := e.accounts.Increment(ctx, accountID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}

	e.record(ctx, UsageEntry{
		AccountID:  accountID,
		ConsumerID: accountID,
		Amount:     amount,
		Remaining:  newBalance,
		Category:   category,
	})
	e.checkAlert(ctx, accountID, newBalance)

	e.logger.Info("balance credited",
		zap.String("account_id", accountID.String()),
		zap.Int64("added", amount),
		zap.Int64("remaining", newBalance),
		zap.String("category", string(category)))

	return &CreditResult{Added: amount, Remaining: newBalance}, nil
}

func (e *Engine) chargeNormal(ctx context.Context, account *models.Account, cost int64, req ChargeRequest) (*ChargeResult, error) {
	if !account.CanCover(cost) {
		return e.rejectNormal(ctx, account, cost, req)
	}

	affected, newBalance, err := e.accounts.ConditionalDecrement(ctx, account.ID, cost, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to deduct balance: %w", err)
	}
	if affected == 0 {
		// The pre-check passed but the balance moved underneath us. Report
		// the race instead of masking it with a retry.
		e.logger.Warn("deduction lost a balance race",
			zap.String("account_id", account.ID.String()),
			zap.Int64("cost", cost))
		return &ChargeResult{Outcome: OutcomeConflict, Mode: ModeNormal, Cost: cost, RawUnits: req.Units}, nil
	}

	e.record(ctx, UsageEntry{
		AccountID:  account.ID,
		ConsumerID: account.ID,
		Amount:     cost,
		Remaining:  newBalance,
		Category:   req.Category,
		RawUnits:   req.Units,
		ContextID:  req.ContextID,
	})
	e.checkAlert(ctx, account.ID, newBalance)

	e.logger.Info("charge committed",
		zap.String("account_id", account.ID.String()),
		zap.String("mode", string(ModeNormal)),
		zap.Int64("cost", cost),
		zap.Int64("units", req.Units),
		zap.Int64("remaining", newBalance))

	return &ChargeResult{
		Outcome:          OutcomeCommitted,
		Mode:             ModeNormal,
		Cost:             cost,
		RawUnits:         req.Units,
		AccountDeducted:  cost,
		AccountRemaining: newBalance,
	}, nil
}

// rejectNormal implements use-what-is-left-then-deny: a nonzero balance
// smaller than the cost is consumed to zero with its own usage record
// before the charge is denied.
func (e *Engine) rejectNormal(ctx context.Context, account *models.Account, cost int64, req ChargeRequest) (*ChargeResult, error) {
	e.logger.Warn("insufficient balance",
		zap.String("account_id", account.ID.String()),
		zap.Int64("required", cost),
		zap.Int64("available", account.Balance),
		zap.String("category", string(req.Category)))

	if account.Balance > 0 {
		remainder := account.Balance
		affected, newBalance, err := e.accounts.ConditionalDecrement(ctx, account.ID, remainder, remainder)
		if err != nil {
			e.logger.Error("failed to drain remainder", zap.Error(err),
				zap.String("account_id", account.ID.String()))
		} else if affected > 0 {
			e.record(ctx, UsageEntry{
				AccountID:  account.ID,
				ConsumerID: account.ID,
				Amount:     remainder,
				Remaining:  newBalance,
				Category:   req.Category,
				RawUnits:   req.Units,
				ContextID:  req.ContextID,
			})
		}
	}

	e.notify(ctx, account.ID, insufficientTitle(req.Category), insufficientBody())

	return &ChargeResult{
		Outcome:  OutcomeInsufficient,
		Mode:     ModeNormal,
		Cost:     cost,
		RawUnits: req.Units,
	}, nil
}

func (e *Engine) chargeSponsorOnly(ctx context.Context, account, sponsor *models.Account, cost int64, req ChargeRequest) (*ChargeResult, error) {
	if !sponsor.CanCover(cost) {
		e.notifySponsorShortfall(ctx, account, sponsor, req.Category)
		return &ChargeResult{
			Outcome:          OutcomeInsufficient,
			Mode:             ModeSponsorOnly,
			Cost:             cost,
			RawUnits:         req.Units,
			AccountRemaining: account.Balance,
			SponsorRemaining: sponsor.Balance,
		}, nil
	}

	affected, sponsorBalance, err := e.accounts.ConditionalDecrement(ctx, sponsor.ID, cost, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to deduct sponsor balance: %w", err)
	}
	if affected == 0 {
		e.logger.Warn("sponsor deduction lost a balance race",
			zap.String("sponsor_id", sponsor.ID.String()),
			zap.Int64("cost", cost))
		return &ChargeResult{Outcome: OutcomeConflict, Mode: ModeSponsorOnly, Cost: cost, RawUnits: req.Units}, nil
	}

	e.record(ctx, UsageEntry{
		AccountID:  sponsor.ID,
		ConsumerID: account.ID,
		Amount:     cost,
		Remaining:  sponsorBalance,
		Category:   req.Category,
		RawUnits:   req.Units,
		ContextID:  req.ContextID,
	})
	e.checkAlert(ctx, sponsor.ID, sponsorBalance)

	e.logger.Info("charge committed",
		zap.String("account_id", account.ID.String()),
		zap.String("sponsor_id", sponsor.ID.String()),
		zap.String("mode", string(ModeSponsorOnly)),
		zap.Int64("cost", cost),
		zap.Int64("sponsor_remaining", sponsorBalance))

	return &ChargeResult{
		Outcome:          OutcomeCommitted,
		Mode:             ModeSponsorOnly,
		Cost:             cost,
		RawUnits:         req.Units,
		AccountRemaining: account.Balance,
		SponsorDeducted:  cost,
		SponsorRemaining: sponsorBalance,
	}, nil
}

// chargeDual debits sponsor first, then the account. The fixed ordering is
// the deadlock-avoidance rule for concurrent charges on the same pair, and
// the account-side failure path must undo the sponsor debit before
// returning: the two-account change is all-or-nothing.
func (e *Engine) chargeDual(ctx context.Context, account, sponsor *models.Account, cost int64, req ChargeRequest) (*ChargeResult, error) {
	if !sponsor.CanCover(cost) || !account.CanCover(cost) {
		e.notifySponsorShortfall(ctx, account, sponsor, req.Category)
		return &ChargeResult{
			Outcome:          OutcomeInsufficient,
			Mode:             ModeDual,
			Cost:             cost,
			RawUnits:         req.Units,
			AccountRemaining: account.Balance,
			SponsorRemaining: sponsor.Balance,
		}, nil
	}

	affected, sponsorBalance, err := e.accounts.ConditionalDecrement(ctx, sponsor.ID, cost, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to deduct sponsor balance: %w", err)
	}
	if affected == 0 {
		return &ChargeResult{Outcome: OutcomeConflict, Mode: ModeDual, Cost: cost, RawUnits: req.Units}, nil
	}

	affected, accountBalance, err := e.accounts.ConditionalDecrement(ctx, account.ID, cost, cost)
	if err != nil {
		return nil, e.compensateSponsor(ctx, sponsor.ID, cost, err)
	}
	if affected == 0 {
		if err := e.compensateSponsor(ctx, sponsor.ID, cost, nil); err != nil {
			return nil, err
		}
		e.logger.Warn("dual deduction lost the account-side race, sponsor debit rolled back",
			zap.String("account_id", account.ID.String()),
			zap.String("sponsor_id", sponsor.ID.String()),
			zap.Int64("cost", cost))
		return &ChargeResult{Outcome: OutcomeConflict, Mode: ModeDual, Cost: cost, RawUnits: req.Units}, nil
	}

	e.record(ctx, UsageEntry{
		AccountID:  sponsor.ID,
		ConsumerID: account.ID,
		Amount:     cost,
		Remaining:  sponsorBalance,
		Category:   req.Category,
		RawUnits:   req.Units,
		ContextID:  req.ContextID,
	})
	e.record(ctx, UsageEntry{
		AccountID:  account.ID,
		ConsumerID: account.ID,
		Amount:     cost,
		Remaining:  accountBalance,
		Category:   req.Category,
		RawUnits:   req.Units,
		ContextID:  req.ContextID,
	})
	e.checkAlert(ctx, sponsor.ID, sponsorBalance)
	e.checkAlert(ctx, account.ID, accountBalance)

	e.logger.Info("charge committed",
		zap.String("account_id", account.ID.String()),
		zap.String("sponsor_id", sponsor.ID.String()),
		zap.String("mode", string(ModeDual)),
		zap.Int64("cost", cost),
		zap.Int64("account_remaining", accountBalance),
		zap.Int64("sponsor_remaining", sponsorBalance))

	return &ChargeResult{
		Outcome:          OutcomeCommitted,
		Mode:             ModeDual,
		Cost:             cost,
		RawUnits:         req.Units,
		AccountDeducted:  cost,
		AccountRemaining: accountBalance,
		SponsorDeducted:  cost,
		SponsorRemaining: sponsorBalance,
	}, nil
}

// compensateSponsor reverses a committed sponsor debit with an
// unconditional credit. Only this engine decremented that balance moments
// earlier, so the credit cannot be rejected for insufficiency; if it fails
// anyway the balances are out of contract and the error escalates as
// ErrInconsistent.
func (e *Engine) compensateSponsor(ctx context.Context, sponsorID uuid.UUID, cost int64, cause error) error {
	if _, err := e.accounts.Increment(ctx, sponsorID, cost); err != nil {
		e.logger.Error("compensating credit failed, sponsor balance needs manual reconciliation",
			zap.String("sponsor_id", sponsorID.String()),
			zap.Int64("amount", cost),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return fmt.Errorf("%w: sponsor %s amount %d: %v", ErrInconsistent, sponsorID, cost, err)
	}
	if cause != nil {
		return fmt.Errorf("failed to deduct account balance: %w", cause)
	}
	return nil
}

func (e *Engine) notifySponsorShortfall(ctx context.Context, account, sponsor *models.Account, category models.UsageCategory) {
	e.logger.Warn("sponsor-covered charge rejected for insufficient balance",
		zap.String("account_id", account.ID.String()),
		zap.String("sponsor_id", sponsor.ID.String()),
		zap.String("category", string(category)))

	e.notify(ctx, account.ID, insufficientTitle(category), sponsorShortfallHolderBody())
	e.notify(ctx, sponsor.ID, sponsorShortfallSponsorTitle(), sponsorShortfallSponsorBody(account.Username))
}

// record appends a usage row. The trail favors balance consistency: a
// failed append is a reporting degradation, logged and not rolled back into
// the already committed mutation.
func (e *Engine) record(ctx context.Context, entry UsageEntry) {
	if e.usage == nil {
		return
	}
	if err := e.usage.Record(ctx, entry); err != nil {
		e.logger.Error("failed to append usage record", zap.Error(err),
			zap.String("account_id", entry.AccountID.String()),
			zap.Int64("amount", entry.Amount),
			zap.String("category", string(entry.Category)))
	}
}

func (e *Engine) notify(ctx context.Context, accountID uuid.UUID, title, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, accountID, title, body); err != nil {
		e.logger.Error("failed to create notification", zap.Error(err),
			zap.String("account_id", accountID.String()))
	}
}

func (e *Engine) checkAlert(ctx context.Context, accountID uuid.UUID, balance int64) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.CheckBalance(ctx, accountID, balance); err != nil {
		e.logger.Debug("balance alert check failed", zap.Error(err),
			zap.String("account_id", accountID.String()))
	}
}
