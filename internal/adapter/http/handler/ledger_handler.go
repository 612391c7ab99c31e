package handler

import (
	"context"
	"strconv"

	"kiosk-ledger/internal/adapter/http/dto"
	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"
	"kiosk-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// LedgerHandler handles the balance-mutating endpoints of the terminal API.
type LedgerHandler struct {
	ledger ports.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger ports.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// IssueToken handles POST /api/v1/tokens.
func (h *LedgerHandler) IssueToken(c *gin.Context) {
	token, err := h.ledger.IssueToken(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.TokenResponse{Token: token})
}

// Purchase handles POST /api/v1/purchases.
func (h *LedgerHandler) Purchase(c *gin.Context) {
	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.ledger.Purchase(c.Request.Context(), ports.PurchaseRequest{
		AccountID: req.AccountID,
		Product:   domain.ProductIdentifier{Type: domain.ProductIdentType(req.ProductType), Value: req.Product},
		Token:     req.Token,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewPurchaseResponse(result))
}

// AnnulPurchase handles POST /api/v1/purchases/:id/annul.
func (h *LedgerHandler) AnnulPurchase(c *gin.Context) {
	h.annul(c, h.ledger.AnnulPurchase)
}

// Charge handles POST /api/v1/charges.
func (h *LedgerHandler) Charge(c *gin.Context) {
	var req dto.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.ledger.Charge(c.Request.Context(), ports.ChargeRequest{
		AccountID: req.AccountID,
		Amount:    amount,
		Comment:   req.Comment,
		Token:     req.Token,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ChargeResponse{ChargeID: result.ChargeID})
}

// AnnulCharge handles POST /api/v1/charges/:id/annul.
func (h *LedgerHandler) AnnulCharge(c *gin.Context) {
	h.annul(c, h.ledger.AnnulCharge)
}

// Transfer handles POST /api/v1/transfers.
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.ledger.Transfer(c.Request.Context(), ports.TransferRequest{
		SenderID: req.SenderID,
		Receiver: domain.AccountIdentifier{Type: domain.AccountIdentType(req.ReceiverType), Value: req.Receiver},
		Amount:   amount,
		Token:    req.Token,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.TransferResponse{TransferID: result.TransferID, ReceiverID: result.ReceiverID})
}

// AnnulTransfer handles POST /api/v1/transfers/:id/annul.
func (h *LedgerHandler) AnnulTransfer(c *gin.Context) {
	h.annul(c, h.ledger.AnnulTransfer)
}

func (h *LedgerHandler) annul(c *gin.Context, fn func(ctx context.Context, id int64) error) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": id, "annulled": true})
}

// pathID parses the :id parameter, writing a validation error when it is not a positive integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperror.Validation("id must be a positive integer"))
		return 0, false
	}
	return id, true
}
