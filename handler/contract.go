package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Shri1927/freelance-escrow/backend/middleware"
	"github.com/Shri1927/freelance-escrow/backend/model"
	"github.com/Shri1927/freelance-escrow/backend/pkg/logger"
	"github.com/Shri1927/freelance-escrow/backend/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ContractHandler struct {
	store    *service.ContractStore
	engine   *service.LifecycleEngine
	archive  *service.ArchiveService // nil when archiving is disabled
	notifier *service.EventNotifier
}

func NewContractHandler(store *service.ContractStore, engine *service.LifecycleEngine, archive *service.ArchiveService, notifier *service.EventNotifier) *ContractHandler {
	return &ContractHandler{
		store:    store,
		engine:   engine,
		archive:  archive,
		notifier: notifier,
	}
}

type CreateContractRequest struct {
	JobID        string          `json:"job_id" binding:"required"`
	FreelancerID string          `json:"freelancer_id" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

type SignContractRequest struct {
	AgreementID string `json:"agreement_id"`
}

type FundContractRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Create opens a new draft contract with the caller as client
func (h *ContractHandler) Create(c *gin.Context) {
	var req CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	contract, err := h.store.Create(service.ContractSpec{
		JobID:        req.JobID,
		ClientID:     middleware.GetUserID(c),
		FreelancerID: req.FreelancerID,
		Amount:       req.Amount,
		Currency:     req.Currency,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "contract created",
		"contract_id", contract.ID,
		"job_id", contract.JobID,
		"amount", contract.Amount.String(),
		"currency", contract.Currency,
	)

	c.JSON(http.StatusCreated, contract)
}

// List returns all contracts the caller is a party to
func (h *ContractHandler) List(c *gin.Context) {
	contracts := h.store.ListByParty(middleware.GetUserID(c))

	// Trim agreement text for the list view
	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		result[i] = gin.H{
			"id":            contract.ID,
			"job_id":        contract.JobID,
			"client_id":     contract.ClientID,
			"freelancer_id": contract.FreelancerID,
			"amount":        contract.Amount,
			"currency":      contract.Currency,
			"funded_amount": contract.FundedAmount,
			"status":        contract.Status,
			"signed":        contract.Signed,
			"created_at":    contract.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":    contract.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// Get returns a single contract with its signed agreement
func (h *ContractHandler) Get(c *gin.Context) {
	contract, ok := h.loadForParty(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Sign signs the contract under the requested agreement
func (h *ContractHandler) Sign(c *gin.Context) {
	if _, ok := h.loadForParty(c); !ok {
		return
	}

	var req SignContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	contract, err := h.engine.Sign(c.Request.Context(), c.Param("id"), req.AgreementID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "contract signed",
		"contract_id", contract.ID,
		"agreement_id", contract.SignedAgreement.ID,
	)

	// Archive and notify after the state change has committed
	go h.archiveSignedAgreement(contract)
	go h.notify(service.EventSigned, contract)

	c.JSON(http.StatusOK, contract)
}

// Fund deposits funds into escrow
func (h *ContractHandler) Fund(c *gin.Context) {
	if _, ok := h.loadForParty(c); !ok {
		return
	}

	var req FundContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	contract, err := h.engine.Fund(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "contract funded",
		"contract_id", contract.ID,
		"deposit", req.Amount.String(),
		"funded_amount", contract.FundedAmount.String(),
		"status", contract.Status,
	)

	go h.notify(service.EventFunded, contract)

	c.JSON(http.StatusOK, contract)
}

// Release pays the escrowed funds out and closes the contract
func (h *ContractHandler) Release(c *gin.Context) {
	if _, ok := h.loadForParty(c); !ok {
		return
	}

	contract, err := h.engine.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "contract released", "contract_id", contract.ID)

	go h.notify(service.EventReleased, contract)

	c.JSON(http.StatusOK, contract)
}

// Refund returns the escrowed funds and closes the contract
func (h *ContractHandler) Refund(c *gin.Context) {
	if _, ok := h.loadForParty(c); !ok {
		return
	}

	contract, err := h.engine.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "contract refunded", "contract_id", contract.ID)

	go h.notify(service.EventRefunded, contract)

	c.JSON(http.StatusOK, contract)
}

// loadForParty fetches the contract and rejects callers who are not a
// party to it. Outsiders get 404, not 403, to avoid leaking contract ids.
func (h *ContractHandler) loadForParty(c *gin.Context) (*model.Contract, bool) {
	contract, err := h.store.Get(c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	if !contract.HasParty(middleware.GetUserID(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return nil, false
	}
	return contract, true
}

func (h *ContractHandler) archiveSignedAgreement(contract *model.Contract) {
	if h.archive == nil || contract.SignedAgreement == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.archive.StoreSignedAgreement(ctx, contract); err != nil {
		logger.Error(ctx, "failed to archive signed agreement",
			"contract_id", contract.ID,
			"error", err,
		)
	}
}

func (h *ContractHandler) notify(event string, contract *model.Contract) {
	if h.notifier == nil || !h.notifier.Enabled() {
		return
	}

	if err := h.notifier.Notify(event, contract); err != nil {
		logger.Error(context.Background(), "failed to deliver lifecycle event",
			"event", event,
			"contract_id", contract.ID,
			"error", err,
		)
	}
}

// writeServiceError maps a core error to an HTTP response. The body keeps
// the error kind and contract context so the UI can render a specific
// message ("cannot fund: contract must be signed first").
func writeServiceError(c *gin.Context, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(499, gin.H{"error": "Request cancelled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var status int
	switch svcErr.Kind {
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindInvalidSpec, service.KindInvalidAmount:
		status = http.StatusBadRequest
	case service.KindBusy:
		status = http.StatusServiceUnavailable
	default:
		// NotSigned, AgreementLocked, OverFunding, NothingToRelease, AlreadyTerminal
		status = http.StatusConflict
	}

	body := gin.H{
		"error": svcErr.Error(),
		"kind":  svcErr.Kind,
	}
	if svcErr.ContractID != "" {
		body["contract_id"] = svcErr.ContractID
	}
	if svcErr.Status != "" {
		body["contract_status"] = svcErr.Status
	}

	c.JSON(status, body)
}
