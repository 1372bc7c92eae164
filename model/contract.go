package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract status constants
const (
	StatusDraft           = "draft"
	StatusPartiallyFunded = "partially_funded"
	StatusFunded          = "funded"
	StatusReleased        = "released"
	StatusRefunded        = "refunded"
)

// Agreement is a legal-text template from the catalog
type Agreement struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Summary string `yaml:"summary" json:"summary"`
	Text    string `yaml:"text" json:"text"`
}

// SignedAgreement is the snapshot of the template a contract was signed
// under. It is frozen at signing time; later catalog edits never touch it.
type SignedAgreement struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Text    string `json:"text"`
}

// Contract represents one client-freelancer escrow engagement
type Contract struct {
	ID              string           `json:"id"`
	JobID           string           `json:"job_id"`
	ClientID        string           `json:"client_id"`
	FreelancerID    string           `json:"freelancer_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency"`
	FundedAmount    decimal.Decimal  `json:"funded_amount"`
	Status          string           `json:"status"` // draft, partially_funded, funded, released, refunded
	Signed          bool             `json:"signed"`
	SignedAt        *time.Time       `json:"signed_at,omitempty"`
	SignedAgreement *SignedAgreement `json:"signed_agreement,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Terminal reports whether the contract accepts no further mutation
func (c *Contract) Terminal() bool {
	return c.Status == StatusReleased || c.Status == StatusRefunded
}

// HasParty reports whether the given user is a party to the contract
func (c *Contract) HasParty(userID string) bool {
	return userID != "" && (c.ClientID == userID || c.FreelancerID == userID)
}

// Clone returns a deep copy of the contract. The store hands out and takes
// in clones only, so callers never share memory with the stored record.
func (c *Contract) Clone() *Contract {
	cp := *c
	if c.SignedAt != nil {
		t := *c.SignedAt
		cp.SignedAt = &t
	}
	if c.SignedAgreement != nil {
		a := *c.SignedAgreement
		cp.SignedAgreement = &a
	}
	return &cp
}
