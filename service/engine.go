package service

import (
	"context"
	"time"

	"github.com/Shri1927/freelance-escrow/backend/model"
	"github.com/shopspring/decimal"
)

// LifecycleEngine validates and applies contract state transitions.
// Every operation is a single atomic mutator run under the store's
// per-contract lock, so the invariants below hold after each call:
//
//	0 <= fundedAmount <= amount, and fundedAmount == 0 after release/refund
//	signed is irreversible
//	released/refunded are terminal
type LifecycleEngine struct {
	store   *ContractStore
	catalog *AgreementCatalog
}

func NewLifecycleEngine(store *ContractStore, catalog *AgreementCatalog) *LifecycleEngine {
	return &LifecycleEngine{store: store, catalog: catalog}
}

// Sign signs the contract under the given agreement template. Signing is a
// one-time irreversible choice of terms: a repeat call with the same
// agreement (or no agreement id) is an idempotent no-op, a repeat call with
// a different agreement fails with AgreementLocked.
func (e *LifecycleEngine) Sign(ctx context.Context, contractID, agreementID string) (*model.Contract, error) {
	return e.store.Update(ctx, contractID, "sign", func(c *model.Contract) error {
		if c.Terminal() {
			return contractError(KindAlreadyTerminal, "sign", c.ID, c.Status, "contract is closed")
		}
		if c.Signed {
			if agreementID == "" || agreementID == c.SignedAgreement.ID {
				return errUnchanged
			}
			return contractError(KindAgreementLocked, "sign", c.ID, c.Status,
				"contract already signed under agreement "+c.SignedAgreement.ID)
		}
		if agreementID == "" {
			return contractError(KindInvalidSpec, "sign", c.ID, c.Status, "agreement id is required")
		}

		agreement, err := e.catalog.Get(agreementID)
		if err != nil {
			return contractError(KindNotFound, "sign", c.ID, c.Status, "unknown agreement "+agreementID)
		}

		now := time.Now()
		c.Signed = true
		c.SignedAt = &now
		c.SignedAgreement = &model.SignedAgreement{
			ID:      agreement.ID,
			Title:   agreement.Title,
			Summary: agreement.Summary,
			Text:    agreement.Text,
		}
		return nil
	})
}

// Fund deposits amount into escrow. Funding past the agreed total is a hard
// reject, never a clamp, so a caller bug surfaces instead of being absorbed.
func (e *LifecycleEngine) Fund(ctx context.Context, contractID string, amount decimal.Decimal) (*model.Contract, error) {
	return e.store.Update(ctx, contractID, "fund", func(c *model.Contract) error {
		if c.Terminal() {
			return contractError(KindAlreadyTerminal, "fund", c.ID, c.Status, "contract is closed")
		}
		if !c.Signed {
			return contractError(KindNotSigned, "fund", c.ID, c.Status, "contract must be signed before funding")
		}
		if !amount.IsPositive() {
			return contractError(KindInvalidAmount, "fund", c.ID, c.Status, "amount must be positive")
		}
		funded := c.FundedAmount.Add(amount)
		if funded.GreaterThan(c.Amount) {
			return contractError(KindOverFunding, "fund", c.ID, c.Status,
				"deposit of "+amount.String()+" would exceed contract total "+c.Amount.String())
		}

		c.FundedAmount = funded
		if funded.Equal(c.Amount) {
			c.Status = model.StatusFunded
		} else {
			c.Status = model.StatusPartiallyFunded
		}
		return nil
	})
}

// Release pays the held funds out of escrow and closes the contract.
// The payout ledger entry itself belongs to the payments collaborator.
func (e *LifecycleEngine) Release(ctx context.Context, contractID string) (*model.Contract, error) {
	return e.store.Update(ctx, contractID, "release", func(c *model.Contract) error {
		if c.Terminal() {
			return contractError(KindAlreadyTerminal, "release", c.ID, c.Status, "contract is closed")
		}
		if c.FundedAmount.IsZero() {
			return contractError(KindNothingToRelease, "release", c.ID, c.Status, "no funds held in escrow")
		}
		c.Status = model.StatusReleased
		c.FundedAmount = decimal.Zero
		return nil
	})
}

// Refund returns whatever was deposited and closes the contract. Allowed
// from any non-terminal state, signed or not, funded or not: it is the
// funds being returned, not the contract.
func (e *LifecycleEngine) Refund(ctx context.Context, contractID string) (*model.Contract, error) {
	return e.store.Update(ctx, contractID, "refund", func(c *model.Contract) error {
		if c.Terminal() {
			return contractError(KindAlreadyTerminal, "refund", c.ID, c.Status, "contract is closed")
		}
		c.Status = model.StatusRefunded
		c.FundedAmount = decimal.Zero
		return nil
	})
}
