package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("no superior link resolves normal", func(t *testing.T) {
		acct := newAccount(100)
		accounts := newMemAccounts(acct)
		r := NewResolver(accounts, &memEntitlements{}, zap.NewNop(), false)

		strategy, err := r.Resolve(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, ModeNormal, strategy.Mode)
		assert.Equal(t, acct.ID, strategy.Payer.ID)
		assert.Nil(t, strategy.Sponsor)
		assert.False(t, strategy.Sponsored())
	})

	t.Run("non-sponsor superior falls back to normal", func(t *testing.T) {
		sub, superior := newSponsoredPair(10, 100)
		superior.IsSponsor = false
		accounts := newMemAccounts(sub, superior)
		r := NewResolver(accounts, &memEntitlements{active: true}, zap.NewNop(), false)

		strategy, err := r.Resolve(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, ModeNormal, strategy.Mode)
		assert.Equal(t, sub.ID, strategy.Payer.ID)
	})

	t.Run("non-sponsor superior rejects in strict mode", func(t *testing.T) {
		sub, superior := newSponsoredPair(10, 100)
		superior.IsSponsor = false
		accounts := newMemAccounts(sub, superior)
		r := NewResolver(accounts, &memEntitlements{active: true}, zap.NewNop(), true)

		_, err := r.Resolve(ctx, sub)
		assert.ErrorIs(t, err, ErrSponsorNotEligible)
	})

	t.Run("active entitlement resolves sponsor_only", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(10, 100)
		accounts := newMemAccounts(sub, sponsor)
		r := NewResolver(accounts, &memEntitlements{active: true}, zap.NewNop(), false)

		strategy, err := r.Resolve(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, ModeSponsorOnly, strategy.Mode)
		assert.Equal(t, sponsor.ID, strategy.Payer.ID)
		assert.Equal(t, sponsor.ID, strategy.Sponsor.ID)
		assert.True(t, strategy.Sponsored())
	})

	t.Run("lapsed entitlement resolves dual", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(10, 100)
		accounts := newMemAccounts(sub, sponsor)
		r := NewResolver(accounts, &memEntitlements{active: false}, zap.NewNop(), false)

		strategy, err := r.Resolve(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, ModeDual, strategy.Mode)
		assert.Equal(t, sub.ID, strategy.Payer.ID)
		assert.Equal(t, sponsor.ID, strategy.Sponsor.ID)
	})

	t.Run("entitlement store error propagates", func(t *testing.T) {
		sub, sponsor := newSponsoredPair(10, 100)
		accounts := newMemAccounts(sub, sponsor)
		r := NewResolver(accounts, &memEntitlements{err: assert.AnError}, zap.NewNop(), false)

		_, err := r.Resolve(ctx, sub)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("missing superior account propagates", func(t *testing.T) {
		sub, _ := newSponsoredPair(10, 100)
		accounts := newMemAccounts(sub)
		r := NewResolver(accounts, &memEntitlements{}, zap.NewNop(), false)

		_, err := r.Resolve(ctx, sub)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}
