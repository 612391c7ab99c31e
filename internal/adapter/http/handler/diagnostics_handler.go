package handler

import (
	"kiosk-ledger/internal/adapter/http/dto"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"
	"kiosk-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// UnknownIdentifiers handles GET /api/v1/diagnostics/unknown-identifiers.
// It lists scanned account identifiers that matched nothing, most recent first.
func UnknownIdentifiers(log ports.UnknownIdentifierLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		idents, err := log.Recent(c.Request.Context())
		if err != nil {
			response.Error(c, apperror.InternalError(err))
			return
		}
		response.OK(c, dto.NewUnknownIdentifierItems(idents))
	}
}
