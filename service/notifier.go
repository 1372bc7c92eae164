package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Shri1927/freelance-escrow/backend/config"
	"github.com/Shri1927/freelance-escrow/backend/model"
)

// Lifecycle event names sent to the webhook receiver
const (
	EventSigned   = "contract.signed"
	EventFunded   = "contract.funded"
	EventReleased = "contract.released"
	EventRefunded = "contract.refunded"
)

// EventNotifier delivers contract lifecycle events to a configured webhook.
// Delivery is best effort: the caller fires it after the state change has
// committed, and a failed delivery never affects contract state.
type EventNotifier struct {
	config     *config.WebhookConfig
	httpClient *http.Client
}

// ContractEvent is the webhook payload. Checksum is
// sha256(contractID + secret + event + occurredAt) so the receiver can
// verify origin without parsing the body first.
type ContractEvent struct {
	Event        string `json:"event"`
	ContractID   string `json:"contract_id"`
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	FundedAmount string `json:"funded_amount"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	OccurredAt   string `json:"occurred_at"`
	Checksum     string `json:"checksum"`
}

func NewEventNotifier(cfg *config.WebhookConfig) *EventNotifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EventNotifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether a webhook URL is configured
func (n *EventNotifier) Enabled() bool {
	return n.config.URL != ""
}

// Notify posts a lifecycle event for the contract
func (n *EventNotifier) Notify(event string, contract *model.Contract) error {
	if !n.Enabled() {
		return nil
	}

	occurredAt := time.Now().Format(time.RFC3339)
	payload := ContractEvent{
		Event:        event,
		ContractID:   contract.ID,
		JobID:        contract.JobID,
		Status:       contract.Status,
		FundedAmount: contract.FundedAmount.String(),
		Amount:       contract.Amount.String(),
		Currency:     contract.Currency,
		OccurredAt:   occurredAt,
		Checksum:     n.Checksum(contract.ID, event, occurredAt),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequest("POST", n.config.URL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.config.Token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Checksum computes the event signature the receiver should verify
func (n *EventNotifier) Checksum(contractID, event, occurredAt string) string {
	hash := sha256.Sum256([]byte(contractID + n.config.Secret + event + occurredAt))
	return hex.EncodeToString(hash[:])
}
