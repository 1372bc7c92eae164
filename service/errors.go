package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the escrow core can produce
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindInvalidSpec      ErrorKind = "invalid_spec"
	KindInvalidAmount    ErrorKind = "invalid_amount"
	KindNotSigned        ErrorKind = "not_signed"
	KindAgreementLocked  ErrorKind = "agreement_locked"
	KindOverFunding      ErrorKind = "over_funding"
	KindNothingToRelease ErrorKind = "nothing_to_release"
	KindAlreadyTerminal  ErrorKind = "already_terminal"
	KindBusy             ErrorKind = "busy"
)

// Error carries enough context for the caller to render a user-facing
// message: the attempted operation, the contract, and its status at the
// time of failure. The core never swallows or retries; Busy is the only
// retryable kind.
type Error struct {
	Kind       ErrorKind
	Op         string // sign, fund, release, refund, create, get
	ContractID string
	Status     string
	Detail     string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Op, e.Kind)
	if e.ContractID != "" {
		msg += " (contract " + e.ContractID
		if e.Status != "" {
			msg += ", status " + e.Status
		}
		msg += ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func newError(kind ErrorKind, op string, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func contractError(kind ErrorKind, op string, contractID, status string, detail string) *Error {
	return &Error{Kind: kind, Op: op, ContractID: contractID, Status: status, Detail: detail}
}

// IsKind reports whether err is a service error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
