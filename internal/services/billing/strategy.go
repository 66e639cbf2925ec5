package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/drople/metering/internal/models"
)

// Mode selects who pays for a charge.
type Mode string

const (
	// ModeNormal debits the consuming account only.
	ModeNormal Mode = "normal"
	// ModeSponsorOnly debits the sponsor only; the consuming account holds
	// an active entitlement.
	ModeSponsorOnly Mode = "sponsor_only"
	// ModeDual debits both the sponsor and the consuming account.
	ModeDual Mode = "dual"
)

// Strategy is the resolved billing policy for a single charge. It is a
// transient value recomputed on every call: entitlement windows expire
// independently of billing events, so caching a Strategy across calls would
// keep charging a lapsed sponsorship.
type Strategy struct {
	Mode    Mode
	Payer   *models.Account
	Sponsor *models.Account
}

// Sponsored reports whether a sponsor account participates in the charge.
func (s Strategy) Sponsored() bool {
	return s.Mode != ModeNormal && s.Sponsor != nil
}

// Resolver determines the billing mode for an account from its superior
// link and the entitlement grants currently in force.
type Resolver struct {
	accounts     AccountStore
	entitlements EntitlementStore
	logger       *zap.Logger

	// strictSponsorLink rejects charges when the superior link points at a
	// non-sponsor account instead of silently falling back to normal
	// billing.
	strictSponsorLink bool
	now               func() time.Time
}

func NewResolver(accounts AccountStore, entitlements EntitlementStore, logger *zap.Logger, strict bool) *Resolver {
	return &Resolver{
		accounts:          accounts,
		entitlements:      entitlements,
		logger:            logger,
		strictSponsorLink: strict,
		now:               time.Now,
	}
}

// Resolve computes the billing strategy for account. The decision ladder:
// no superior link means normal billing; a superior without sponsor status
// falls back to normal (or errors in strict mode); an active entitlement
// window selects sponsor-only; a linked sponsor without a current
// entitlement selects dual billing.
func (r *Resolver) Resolve(ctx context.Context, account *models.Account) (Strategy, error) {
	normal := Strategy{Mode: ModeNormal, Payer: account}

	if !account.HasSuperior() {
		return normal, nil
	}

	sponsor, err := r.accounts.Get(ctx, *account.SuperiorID)
	if err != nil {
		return Strategy{}, fmt.Errorf("failed to load superior account: %w", err)
	}

	if !sponsor.IsSponsor {
		if r.strictSponsorLink {
			return Strategy{}, ErrSponsorNotEligible
		}
		r.logger.Warn("superior account lacks sponsor status, falling back to normal billing",
			zap.String("account_id", account.ID.String()),
			zap.String("superior_id", sponsor.ID.String()))
		return normal, nil
	}

	covered, err := r.entitlements.HasActiveGrant(ctx, account.ID, sponsor.ID, r.now())
	if err != nil {
		return Strategy{}, fmt.Errorf("failed to query entitlements: %w", err)
	}

	if covered {
		return Strategy{Mode: ModeSponsorOnly, Payer: sponsor, Sponsor: sponsor}, nil
	}
	return Strategy{Mode: ModeDual, Payer: account, Sponsor: sponsor}, nil
}
