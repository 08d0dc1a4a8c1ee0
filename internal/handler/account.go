package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/coeus-solutions/api-podcast/internal/middleware"
	"github.com/coeus-solutions/api-podcast/internal/model"
	"github.com/coeus-solutions/api-podcast/internal/token"
	"github.com/coeus-solutions/api-podcast/pkg/response"
)

type AccountHandler struct {
	meter *token.Meter
}

func NewAccountHandler(meter *token.Meter) *AccountHandler {
	return &AccountHandler{
		meter: meter,
	}
}

// Balance handles GET /api/account/balance
func (h *AccountHandler) Balance(c *fiber.Ctx) error {
	accountID := middleware.GetUserID(c)

	account, err := h.meter.Balance(c.Context(), accountID)
	if err != nil {
		if errors.Is(err, token.ErrAccountNotFound) {
			return response.NotFound(c, "Account not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.BalanceResponse{
		AccountID:       account.ID,
		TotalTokens:     account.TotalTokens,
		UsedTokens:      account.UsedTokens,
		AvailableTokens: account.Available(),
	})
}
