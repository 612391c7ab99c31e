package handler

import (
	"kiosk-ledger/internal/adapter/http/dto"
	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"
	"kiosk-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves account lookup and the read side for a logged-in account.
type AccountHandler struct {
	ledger    ports.LedgerService
	reporting ports.ReportingService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger ports.LedgerService, reporting ports.ReportingService) *AccountHandler {
	return &AccountHandler{ledger: ledger, reporting: reporting}
}

// Resolve handles GET /api/v1/accounts/resolve?type=BARCODE&value=...
func (h *AccountHandler) Resolve(c *gin.Context) {
	var q dto.ResolveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	ident := domain.AccountIdentifier{Type: domain.AccountIdentType(q.Type), Value: q.Value}
	acc, err := h.ledger.ResolveAccount(c.Request.Context(), ident, q.RequireEnabled)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewAccountResponse(acc))
}

// GetBalance handles GET /api/v1/accounts/:id.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	balance, err := h.reporting.Balance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"id": id, "balance": domain.FormatAmount(balance)})
}

// History handles GET /api/v1/accounts/:id/history.
func (h *AccountHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	balance, err := h.reporting.Balance(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	purchases, err := h.reporting.RecentPurchases(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	charges, err := h.reporting.RecentCharges(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	transfers, err := h.reporting.RecentTransfers(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.HistoryResponse{
		Balance:   domain.FormatAmount(balance),
		Purchases: dto.NewPurchaseItems(purchases),
		Charges:   dto.NewChargeItems(charges),
		Transfers: dto.NewTransferItems(transfers),
	})
}
