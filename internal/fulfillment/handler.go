package fulfillment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler { return &Handler{engine: engine} }

// Register mounts the webhook route. The body is consumed raw: signature
// verification needs the exact bytes Stripe signed, so no JSON middleware
// may touch this route.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/stripe/webhook", h.handleWebhook)
}

func (h *Handler) handleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "failed to read request body")
		return
	}

	err = h.engine.HandleEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, ErrBadSignature):
		log.Warn().Err(err).Msg("webhook signature verification failed")
		c.String(http.StatusBadRequest, "Webhook Error: signature verification failed")
	default:
		// A server error makes the provider retry the delivery.
		log.Error().Err(err).Msg("failed to fulfill order")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order in database."})
	}
}
