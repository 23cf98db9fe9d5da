package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/webhook"
)

// maxWebhookBody caps inbound payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// HandleWebhook persists one inbound delivery and acknowledges it. The
// response never reveals whether the signature verified; a forger learns
// nothing, and legitimate senders with a misconfigured secret show up in
// the stored unverified events instead.
func (r *Router) HandleWebhook(provider webhook.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		receipt, err := r.receiver.Receive(
			c.Request.Context(),
			provider,
			body,
			c.GetHeader(webhook.SignatureHeader),
		)
		if err != nil {
			if errors.Is(err, webhook.ErrMalformedBody) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
				return
			}
			r.logger.Error("webhook_receive_failed",
				zap.Error(err),
				zap.String("provider", string(provider)),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		status := http.StatusAccepted
		if !receipt.Created {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{
			"id":     strconv.FormatInt(receipt.Event.ID, 10),
			"status": string(receipt.Event.Status),
		})
	}
}
