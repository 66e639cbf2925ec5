package billing

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drople/metering/internal/models"
)

type engineFixture struct {
	engine       *Engine
	accounts     *memAccounts
	entitlements *memEntitlements
	usage        *memUsage
	notifier     *memNotifier
	alerts       *memAlerts
}

func newFixture(entitled bool, accounts ...*models.Account) *engineFixture {
	f := &engineFixture{
		accounts:     newMemAccounts(accounts...),
		entitlements: &memEntitlements{active: entitled},
		usage:        &memUsage{},
		notifier:     &memNotifier{},
		alerts:       &memAlerts{},
	}
	f.engine = NewEngine(&Config{
		Logger:       zap.NewNop(),
		Accounts:     f.accounts,
		Entitlements: f.entitlements,
		Usage:        f.usage,
		Notifier:     f.notifier,
		Alerts:       f.alerts,
		Multipliers: map[models.UsageCategory]float64{
			models.CategoryClassification: 2.0,
		},
	})
	return f
}

func newAccount(balance int64) *models.Account {
	a := &models.Account{Balance: balance, Username: "acct", Email: "acct@example.com"}
	a.ID = uuid.New()
	return a
}

func newSponsoredPair(accountBalance, sponsorBalance int64) (*models.Account, *models.Account) {
	sponsor := &models.Account{Balance: sponsorBalance, Username: "partner", Email: "partner@example.com", IsSponsor: true}
	sponsor.ID = uuid.New()
	sub := &models.Account{Balance: accountBalance, Username: "reseller", Email: "reseller@example.com", SuperiorID: &sponsor.ID}
	sub.ID = uuid.New()
	return sub, sponsor
}

func TestChargeNormal(t *testing.T) {
	ctx := context.Background()

	t.Run("commit deducts exactly the cost", func(t *testing.T) {
		acct := newAccount(100)
		f := newFixture(false, acct)

		result, err := f.engine.Charge(ctx, ChargeRequest{
			AccountID: acct.ID,
			Units:     2500,
			Category:  models.CategoryChatReply,
		})
		require.NoError(t, err)

		assert.Equal(t, OutcomeCommitted, result.Outcome)
		assert.Equal(t, ModeNormal, result.Mode)
		assert.Equal(t, int64(3), result.Cost)
		assert.Equal(t, int64(97), result.AccountRemaining)
		assert.Equal(t, int64(97), f.accounts.balance(acct.ID))

		entries := f.usage.all()
		require.Len(t, entries, 1)
		assert.Equal(t, acct.ID, entries[0].AccountID)
		assert.Equal(t, acct.ID, entries[0].ConsumerID)
		assert.Equal(t, int64(3), entries[0].Amount)
		assert.Equal(t, int64(97), entries[0].Remaining)
		assert.Equal(t, int64(2500), entries[0].RawUnits)

		alerts := f.alerts.all()
		require.Len(t, alerts, 1)
		assert.Equal(t, int64(97), alerts[0].balance)
	})

	t.Run("zero units commit without mutation", func(t *testing.T) {
		acct := newAccount(50)
		f := newFixture(false, acct)

		result, err := f.engine.Charge(ctx, ChargeRequest{AccountID: acct.ID, Units: 0})
		require.NoError(t, err)

		assert.Equal(t, OutcomeCommitted, result.Outcome)
		assert.Zero(t, result.Cost)
		assert.Equal(t, int64(50), f.accounts.balance(acct.ID))
		assert.Empty(t, f.usage.all())
	})

	t.Run("category multiplier applies", func(t *testing.T) {
		acct := newAccount(100)
		f := newFixture(false, acct)

		result, err := f.engine.Charge(ctx, ChargeRequest{
			AccountID: acct.ID,
			Units:     1000,
			Category:  models.CategoryClassification,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), result.Cost)
		assert.Equal(t, int64(98), f.accounts.balance(acct.ID))
	})

	t.Run("insufficient drains remainder and notifies", func(t *testing.T) {
		acct := newAccount(500)
		f := newFixture(false, acct)

		result, err := f.engine.Charge(ctx, ChargeRequest{
			AccountID: acct.ID,
			Units:     1_000_000,
			Category:  models.CategoryChatReply,
		})
		require.NoError(t, err)

		assert.Equal(t, OutcomeInsufficient, result.Outcome)
		assert.Equal(t, int64(1000), result.Cost)
		assert.Equal(t, int64(0), f.accounts.balance(acct.ID))

		entries := f.usage.all()
		require.Len(t, entries, 1)
		assert.Equal(t, int64(500), entries[0].Amount)
		assert.Equal(t, int64(0), entries[0].Remaining)

		notes := f.notifier.all()
		require.Len(t, notes, 1)
		assert.Equal(t, acct.ID, notes[0].accountID)
	})

	t.Run("insufficient with zero balance writes no record", func(t *testing.T) {
		acct := newAccount(0)
		f := newFixture(false, acct)

		result, err := f.engine.Charge(ctx, ChargeRequest{AccountID: acct.ID, Units: 5000})
		require.NoError(t, err)

		assert.Equal(t, OutcomeInsufficient, result.Outcome)
		assert.Empty(t, f.usage.all())
		assert.Len(t, f.notifier.all(), 1)
	})

	t.Run("lost race reports conflict", func(t *testing.T) {
		acct := newAccount(100)
		f := newFixture(false, acct)
		f.accounts.conflictOnce[acct.ID] = true

		result, err := f.engine.Charge(ctx, ChargeRequest{AccountID: acct.ID, Units: 1000})
		require.NoError(t, err)

		assert.Equal(t, OutcomeConflict, result.Outcome)
		assert.Equal(t, int64(100), f.accounts.balance(acct.ID))
		assert.Empty(t, f.usage.all())
		assert.Empty(t, f.notifier.all())
	})

	t.Run("unknown account errors", func(t *testing.T) {
		f := newFixture(false)
		_, err := f.engine.Charge(ctx, ChargeRequest{AccountID: uuid.New(), Units: 1000})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestChargeSponsorOnly(t *testing.T) {
	ctx := context.Background()

	t.Run("sponsor pays, subordinate untouched", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(5, 50)
		f := newFixture(true, sub, sponsor)

		result, err := f.engine.Charge(ctx, ChargeRequest{
			AccountID: sub.ID,
			Units:     10_000,
			Category:  models.CategoryChatReply,
		})
		require.NoError(t, err)

		assert.Equal(t, OutcomeCommitted, result.Outcome)
		assert.Equal(t, ModeSponsorOnly, result.Mode)
		assert.Equal(t, int64(10), result.Cost)
		assert.Equal(t, int64(40), result.SponsorRemaining)
		assert.Equal(t, int64(40), f.accounts.balance(sponsor.ID))
		assert.Equal(t, int64(5), f.accounts.balance(sub.ID))

		entries := f.usage.all()
		require.Len(t, entries, 1)
		assert.Equal(t, sponsor.ID, entries[0].AccountID)
		assert.Equal(t, sub.ID, entries[0].ConsumerID)
	})

	t.Run("sponsor shortfall notifies both parties", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(100, 5)
		f := newFixture(true, sub, sponsor)

		result, err := f.engine.Charge(ctx, ChargeRequest{AccountID: sub.ID, Units: 10_000})
		require.NoError(t, err)

		assert.Equal(t, OutcomeInsufficient, result.Outcome)
		assert.Equal(t, int64(5), f.accounts.balance(sponsor.ID))
		// Subordinate keeps its balance; no remainder drain outside normal
		// mode.
		assert.Equal(t, int64(100), f.accounts.balance(sub.ID))
		assert.Empty(t, f.usage.all())

		notes := f.notifier.all()
		require.Len(t, notes, 2)
		recipients := []uuid.UUID{notes[0].accountID, notes[1].accountID}
		assert.Contains(t, recipients, sub.ID)
		assert.Contains(t, recipients, sponsor.ID)
	})

	t.Run("sponsor race reports conflict", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(5, 50)
		f := newFixture(true, sub, sponsor)
		f.accounts.conflictOnce[sponsor.ID] = true

		result, err := f.engine.Charge(ctx, ChargeRequest{AccountID: sub.ID, Units: 10_000})
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, result.Outcome)
		assert.Equal(t, int64(50), f.accounts.balance(sponsor.ID))
	})
}

func TestChargeDual(t *testing.T) {
	ctx := context.Background()

	t.Run("both balances debited", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(30, 100)
		f := newFixture(false, sub, sponsor)

		result, err := f.engine.Charge(ctx, ChargeRequest{
			AccountID: sub.ID,
			Units:     10_000,
			Category:  models.CategoryChatReply,
		})
		require.NoError(t, err)

		assert.Equal(t, OutcomeCommitted, result.Outcome)
		assert.Equal(t, ModeDual, result.Mode)
		assert.Equal(t, int64(20), f.accounts.balance(sub.ID))
		assert.Equal(t, int64(90), f.accounts.balance(sponsor.ID))

		entries := f.usage.all()
		require.Len(t, entries, 2)
		assert.Equal(t, sponsor.ID, entries[0].AccountID)
		assert.Equal(t, sub.ID, entries[1].AccountID)
		for _, e := range entries {
			assert.Equal(t, sub.ID, e.ConsumerID)
			assert.Equal(t, int64(10), e.Amount)
		}
		assert.Len(t, f.alerts.all(), 2)
	})

	t.Run("subordinate shortfall leaves sponsor untouched", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(5, 100)
		f := newFixture(false, sub, sponsor)

		result, err := f.engine.Charge(ctx, ChargeRequest{AccountID: sub.ID, Units: 10_000})
		require.NoError(t, err)

		assert.Equal(t, OutcomeInsufficient, result.Outcome)
		assert.Equal(t, int64(100), f.accounts.balance(sponsor.ID))
		assert.Equal(t, int64(5), f.accounts.balance(sub.ID))
		// The sponsor side must never have been decremented in this branch,
		// not merely restored.
		assert.Zero(t, f.accounts.decrements[sponsor.ID])
		assert.Zero(t, f.accounts.increments[sponsor.ID])
		assert.Len(t, f.notifier.all(), 2)
	})

	t.Run("account race rolls the sponsor debit back", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(30, 100)
		f := newFixture(false, sub, sponsor)
		f.accounts.conflictOnce[sub.ID] = true

		result, err := f.engine.Charge(ctx, ChargeRequest{AccountID: sub.ID, Units: 10_000})
		require.NoError(t, err)

		assert.Equal(t, OutcomeConflict, result.Outcome)
		// Round-trip property: sponsor balance equals its value before the
		// call.
		assert.Equal(t, int64(100), f.accounts.balance(sponsor.ID))
		assert.Equal(t, int64(30), f.accounts.balance(sub.ID))
		assert.Equal(t, 1, f.accounts.increments[sponsor.ID])
		assert.Empty(t, f.usage.all())
	})

	t.Run("failed compensation escalates as inconsistent", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(30, 100)
		f := newFixture(false, sub, sponsor)
		f.accounts.conflictOnce[sub.ID] = true
		f.accounts.failIncrement[sponsor.ID] = true

		_, err := f.engine.Charge(ctx, ChargeRequest{AccountID: sub.ID, Units: 10_000})
		assert.ErrorIs(t, err, ErrInconsistent)
	})

	t.Run("sponsor race rejects before touching the account", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(30, 100)
		f := newFixture(false, sub, sponsor)
		f.accounts.conflictOnce[sponsor.ID] = true

		result, err := f.engine.Charge(ctx, ChargeRequest{AccountID: sub.ID, Units: 10_000})
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, result.Outcome)
		assert.Equal(t, int64(30), f.accounts.balance(sub.ID))
		assert.Zero(t, f.accounts.decrements[sub.ID])
	})
}

func TestCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credit", func(t *testing.T) {
		acct := newAccount(10)
		f := newFixture(false, acct)

		result, err := f.engine.Credit(ctx, acct.ID, 90, models.CategoryTopUp)
		require.NoError(t, err)

		assert.Equal(t, int64(90), result.Added)
		assert.Equal(t, int64(100), result.Remaining)
		assert.Equal(t, int64(100), f.accounts.balance(acct.ID))

		entries := f.usage.all()
		require.Len(t, entries, 1)
		assert.Equal(t, models.CategoryTopUp, entries[0].Category)
		assert.Equal(t, int64(100), entries[0].Remaining)
	})

	t.Run("non-credit category is coerced", func(t *testing.T) {
		acct := newAccount(0)
		f := newFixture(false, acct)

		_, err := f.engine.Credit(ctx, acct.ID, 5, models.CategoryChatReply)
		require.NoError(t, err)

		entries := f.usage.all()
		require.Len(t, entries, 1)
		assert.Equal(t, models.CategoryTopUp, entries[0].Category)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		acct := newAccount(10)
		f := newFixture(false, acct)

		for _, amount := range []int64{0, -5} {
			_, err := f.engine.Credit(ctx, acct.ID, amount, models.CategoryTopUp)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		}
		assert.Equal(t, int64(10), f.accounts.balance(acct.ID))
		assert.Empty(t, f.usage.all())
	})
}

func TestChargeOne(t *testing.T) {
	acct := newAccount(3)
	f := newFixture(false, acct)

	result, err := f.engine.ChargeOne(context.Background(), acct.ID, models.CategoryChatReply, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Cost)
	assert.Equal(t, int64(2), f.accounts.balance(acct.ID))
}

func TestUsageRecordFailureDoesNotAffectOutcome(t *testing.T) {
	acct := newAccount(100)
	f := newFixture(false, acct)
	f.usage.err = assert.AnError

	result, err := f.engine.Charge(context.Background(), ChargeRequest{AccountID: acct.ID, Units: 1000})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, result.Outcome)
	assert.Equal(t, int64(99), f.accounts.balance(acct.ID))
}

// TestConcurrentChargesConservation drives racing conditional decrements at
// one account and checks the conservation law: committed deductions plus
// the final balance equal the initial balance, and the balance never goes
// negative.
func TestConcurrentChargesConservation(t *testing.T) {
	const (
		initial    = int64(200)
		goroutines = 8
		attempts   = 50
	)

	acct := newAccount(initial)
	f := newFixture(false, acct)
	ctx := context.Background()

	var mu sync.Mutex
	var committed int64

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < attempts; i++ {
				result, err := f.engine.Charge(ctx, ChargeRequest{
					AccountID: acct.ID,
					Units:     1000,
					Category:  models.CategoryChatReply,
				})
				if err != nil {
					continue
				}
				if result.Outcome == OutcomeCommitted {
					mu.Lock()
					committed += result.Cost
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	final := f.accounts.balance(acct.ID)
	assert.GreaterOrEqual(t, final, int64(0))
	assert.Equal(t, initial, committed+final)
}
