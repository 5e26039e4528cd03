package handlers

import (
	"net/http"

	"astroconnect/internal/services"
	"astroconnect/internal/upstream"
	"astroconnect/internal/utils"

	"github.com/gin-gonic/gin"
)

// WalletHandler answers the pre-request affordability question so the UI
// can disable the connect button before a request is ever made.
type WalletHandler struct {
	wallet    *services.WalletService
	providers upstream.ProviderAPI
}

func NewWalletHandler(wallet *services.WalletService, providers upstream.ProviderAPI) *WalletHandler {
	return &WalletHandler{wallet: wallet, providers: providers}
}

// CheckBalance evaluates the caller's balance against the minimum needed
// for a session with the given provider.
func (h *WalletHandler) CheckBalance(c *gin.Context) {
	userID := c.GetString("user_id")

	providerID := c.Query("provider_id")
	if providerID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "provider_id is required")
		return
	}

	provider, err := h.providers.GetProvider(c.Request.Context(), providerID)
	if err != nil {
		writeUpstreamError(c, err, "Failed to load provider")
		return
	}

	check, err := h.wallet.Check(c.Request.Context(), userID, provider.PricePerMinute)
	if err != nil {
		writeUpstreamError(c, err, "Failed to check balance")
		return
	}

	utils.SuccessResponse(c, check)
}

// GetProvider returns the provider card the request screen renders.
func (h *WalletHandler) GetProvider(c *gin.Context) {
	provider, err := h.providers.GetProvider(c.Request.Context(), c.Param("provider_id"))
	if err != nil {
		writeUpstreamError(c, err, "Failed to load provider")
		return
	}

	utils.SuccessResponse(c, provider)
}
