package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Shri1927/freelance-escrow/backend/model"
	"github.com/shopspring/decimal"
)

func newTestCatalog() *AgreementCatalog {
	agreements := []*model.Agreement{
		{ID: "milestone", Title: "Milestone Agreement", Summary: "installments", Text: "milestone terms"},
		{ID: "fixed-price", Title: "Fixed Price Agreement", Summary: "single total", Text: "fixed price terms"},
	}
	catalog := &AgreementCatalog{byID: make(map[string]*model.Agreement)}
	for _, a := range agreements {
		catalog.byID[a.ID] = a
		catalog.order = append(catalog.order, a)
	}
	return catalog
}

func newTestEngine() (*LifecycleEngine, *ContractStore) {
	store := NewContractStore(5 * time.Second)
	return NewLifecycleEngine(store, newTestCatalog()), store
}

func createContract(t *testing.T, store *ContractStore, amount int64) *model.Contract {
	t.Helper()
	contract, err := store.Create(ContractSpec{
		JobID:        "job-1",
		ClientID:     "client-1",
		FreelancerID: "freelancer-1",
		Amount:       decimal.NewFromInt(amount),
		Currency:     "USD",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return contract
}

func TestFundBeforeSign(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)

	_, err := engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(300))
	if !IsKind(err, KindNotSigned) {
		t.Errorf("Expected not_signed error, got %v", err)
	}

	current, _ := store.Get(contract.ID)
	if !current.FundedAmount.IsZero() {
		t.Errorf("Failed fund must not change funded amount, got %s", current.FundedAmount)
	}
}

func TestSignThenFundToCompletion(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)

	signed, err := engine.Sign(context.Background(), contract.ID, "milestone")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !signed.Signed {
		t.Error("Expected signed flag set")
	}
	if signed.SignedAt == nil {
		t.Error("Expected signedAt set")
	}
	if signed.Status != model.StatusDraft {
		t.Errorf("Signing alone must not change status, got %s", signed.Status)
	}
	if signed.SignedAgreement == nil || signed.SignedAgreement.ID != "milestone" {
		t.Fatal("Expected milestone agreement snapshot attached")
	}
	if signed.SignedAgreement.Text != "milestone terms" {
		t.Error("Expected full template text in the snapshot")
	}

	partial, err := engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(300))
	if err != nil {
		t.Fatalf("Fund failed: %v", err)
	}
	if partial.Status != model.StatusPartiallyFunded {
		t.Errorf("Expected partially_funded, got %s", partial.Status)
	}
	if !partial.FundedAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected funded 300, got %s", partial.FundedAmount)
	}

	full, err := engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(700))
	if err != nil {
		t.Fatalf("Fund failed: %v", err)
	}
	if full.Status != model.StatusFunded {
		t.Errorf("Expected funded, got %s", full.Status)
	}
	if !full.FundedAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected funded 1000, got %s", full.FundedAmount)
	}
}

func TestSignIdempotent(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)

	first, err := engine.Sign(context.Background(), contract.ID, "milestone")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	second, err := engine.Sign(context.Background(), contract.ID, "milestone")
	if err != nil {
		t.Fatalf("Repeat sign with same agreement must not fail: %v", err)
	}
	if !second.SignedAt.Equal(*first.SignedAt) {
		t.Error("Repeat sign must not change signedAt")
	}

	// Omitting the agreement id on a signed contract is also a no-op
	third, err := engine.Sign(context.Background(), contract.ID, "")
	if err != nil {
		t.Fatalf("Repeat sign without agreement id must not fail: %v", err)
	}
	if third.SignedAgreement.ID != "milestone" {
		t.Errorf("Expected original agreement kept, got %s", third.SignedAgreement.ID)
	}
}

func TestSignDifferentAgreementLocked(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)

	if _, err := engine.Sign(context.Background(), contract.ID, "milestone"); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	_, err := engine.Sign(context.Background(), contract.ID, "fixed-price")
	if !IsKind(err, KindAgreementLocked) {
		t.Errorf("Expected agreement_locked error, got %v", err)
	}

	current, _ := store.Get(contract.ID)
	if current.SignedAgreement.ID != "milestone" {
		t.Errorf("Rejected re-sign must not swap terms, got %s", current.SignedAgreement.ID)
	}
}

func TestSignRequiresAgreementID(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)

	_, err := engine.Sign(context.Background(), contract.ID, "")
	if !IsKind(err, KindInvalidSpec) {
		t.Errorf("Expected invalid_spec error, got %v", err)
	}
}

func TestSignUnknownAgreement(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)

	_, err := engine.Sign(context.Background(), contract.ID, "no-such-template")
	if !IsKind(err, KindNotFound) {
		t.Errorf("Expected not_found error, got %v", err)
	}

	current, _ := store.Get(contract.ID)
	if current.Signed {
		t.Error("Failed sign must not set the signed flag")
	}
}

func TestSignUnknownContract(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.Sign(context.Background(), "missing", "milestone")
	if !IsKind(err, KindNotFound) {
		t.Errorf("Expected not_found error, got %v", err)
	}
}

func TestFundInvalidAmount(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)
	engine.Sign(context.Background(), contract.ID, "milestone")

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-50)} {
		_, err := engine.Fund(context.Background(), contract.ID, amount)
		if !IsKind(err, KindInvalidAmount) {
			t.Errorf("Expected invalid_amount for %s, got %v", amount, err)
		}
	}
}

func TestFundOverFunding(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 500)
	engine.Sign(context.Background(), contract.ID, "fixed-price")

	_, err := engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(600))
	if !IsKind(err, KindOverFunding) {
		t.Errorf("Expected over_funding error, got %v", err)
	}

	current, _ := store.Get(contract.ID)
	if !current.FundedAmount.IsZero() {
		t.Errorf("Rejected overfund must not change funded amount, got %s", current.FundedAmount)
	}
	if current.Status != model.StatusDraft {
		t.Errorf("Rejected overfund must not change status, got %s", current.Status)
	}
}

func TestFundOverFundingCumulative(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 500)
	engine.Sign(context.Background(), contract.ID, "fixed-price")
	engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(400))

	_, err := engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(200))
	if !IsKind(err, KindOverFunding) {
		t.Errorf("Expected over_funding error, got %v", err)
	}

	current, _ := store.Get(contract.ID)
	if !current.FundedAmount.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected funded amount unchanged at 400, got %s", current.FundedAmount)
	}
}

func TestFundDecimalAmounts(t *testing.T) {
	engine, store := newTestEngine()

	contract, err := store.Create(ContractSpec{
		JobID:        "job-1",
		ClientID:     "client-1",
		FreelancerID: "freelancer-1",
		Amount:       decimal.RequireFromString("0.30"),
		Currency:     "USD",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	engine.Sign(context.Background(), contract.ID, "milestone")

	// Three cents at a time; binary floats would drift here
	for i := 0; i < 3; i++ {
		if _, err := engine.Fund(context.Background(), contract.ID, decimal.RequireFromString("0.10")); err != nil {
			t.Fatalf("Fund %d failed: %v", i+1, err)
		}
	}

	current, _ := store.Get(contract.ID)
	if current.Status != model.StatusFunded {
		t.Errorf("Expected exactly funded after 3 x 0.10, got %s with %s", current.Status, current.FundedAmount)
	}
}

func TestReleaseFunded(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)
	engine.Sign(context.Background(), contract.ID, "milestone")
	engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(1000))

	released, err := engine.Release(context.Background(), contract.ID)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released.Status != model.StatusReleased {
		t.Errorf("Expected released, got %s", released.Status)
	}
	if !released.FundedAmount.IsZero() {
		t.Errorf("Expected zero funded amount after release, got %s", released.FundedAmount)
	}

	// Terminal: a second release must fail and change nothing
	_, err = engine.Release(context.Background(), contract.ID)
	if !IsKind(err, KindAlreadyTerminal) {
		t.Errorf("Expected already_terminal error, got %v", err)
	}
}

func TestReleasePartiallyFunded(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)
	engine.Sign(context.Background(), contract.ID, "milestone")
	engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(400))

	released, err := engine.Release(context.Background(), contract.ID)
	if err != nil {
		t.Fatalf("Release of held partial funds failed: %v", err)
	}
	if released.Status != model.StatusReleased {
		t.Errorf("Expected released, got %s", released.Status)
	}
}

func TestReleaseNothingHeld(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)
	engine.Sign(context.Background(), contract.ID, "milestone")

	_, err := engine.Release(context.Background(), contract.ID)
	if !IsKind(err, KindNothingToRelease) {
		t.Errorf("Expected nothing_to_release error, got %v", err)
	}
}

func TestRefundPartiallyFunded(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)
	engine.Sign(context.Background(), contract.ID, "milestone")
	engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(200))

	refunded, err := engine.Refund(context.Background(), contract.ID)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if refunded.Status != model.StatusRefunded {
		t.Errorf("Expected refunded, got %s", refunded.Status)
	}
	if !refunded.FundedAmount.IsZero() {
		t.Errorf("Expected zero funded amount after refund, got %s", refunded.FundedAmount)
	}
	if !refunded.Signed {
		t.Error("Refund must not unset the signed flag")
	}
}

func TestRefundUnsignedDraft(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)

	// Refund is permissive: an unsigned, unfunded draft can still be closed
	refunded, err := engine.Refund(context.Background(), contract.ID)
	if err != nil {
		t.Fatalf("Refund of unsigned draft failed: %v", err)
	}
	if refunded.Status != model.StatusRefunded {
		t.Errorf("Expected refunded, got %s", refunded.Status)
	}
}

func TestRefundTerminal(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)
	engine.Refund(context.Background(), contract.ID)

	_, err := engine.Refund(context.Background(), contract.ID)
	if !IsKind(err, KindAlreadyTerminal) {
		t.Errorf("Expected already_terminal error, got %v", err)
	}
}

func TestTerminalContractRejectsAllOperations(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 1000)
	engine.Sign(context.Background(), contract.ID, "milestone")
	engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(1000))
	engine.Release(context.Background(), contract.ID)

	if _, err := engine.Sign(context.Background(), contract.ID, "milestone"); !IsKind(err, KindAlreadyTerminal) {
		t.Errorf("Expected already_terminal on sign, got %v", err)
	}
	if _, err := engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(1)); !IsKind(err, KindAlreadyTerminal) {
		t.Errorf("Expected already_terminal on fund, got %v", err)
	}
	if _, err := engine.Refund(context.Background(), contract.ID); !IsKind(err, KindAlreadyTerminal) {
		t.Errorf("Expected already_terminal on refund, got %v", err)
	}
}

func TestConcurrentFundsNeverSkipOrExceed(t *testing.T) {
	engine, store := newTestEngine()
	contract := createContract(t, store, 100)
	engine.Sign(context.Background(), contract.ID, "milestone")

	// 150 concurrent unit deposits against a total of 100: exactly 100
	// must succeed and the rest must fail with over_funding
	const attempts = 150
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Fund(context.Background(), contract.ID, decimal.NewFromInt(1))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if !IsKind(err, KindOverFunding) {
				t.Errorf("Unexpected error kind: %v", err)
			}
		}()
	}
	wg.Wait()

	final, _ := store.Get(contract.ID)
	if !final.FundedAmount.Equal(decimal.NewFromInt(int64(succeeded))) {
		t.Errorf("Sum of successful increments %d does not match funded amount %s", succeeded, final.FundedAmount)
	}
	if !final.FundedAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected funded amount 100, got %s", final.FundedAmount)
	}
	if final.Status != model.StatusFunded {
		t.Errorf("Expected funded status, got %s", final.Status)
	}
}
