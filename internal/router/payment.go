package router

import (
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/middleware"
	"storefront/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func createPaymentIntent(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Amount   decimal.Decimal `json:"amount"`
			Currency string          `json:"currency"`
		}
		if !bind(c, d, &req) {
			return
		}
		intent, err := d.Payments.CreateIntent(c.Request.Context(), req.Amount, req.Currency, middleware.CurrentUser(c))
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"clientSecret": intent.ClientSecret, "paymentIntentId": intent.ID})
	}
}

func confirmPayment(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PaymentIntentID string `json:"paymentIntentId"`
		}
		if !bind(c, d, &req) {
			return
		}
		intent, err := d.Payments.Retrieve(c.Request.Context(), req.PaymentIntentID)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"status": intent.Status, "paymentIntent": intent})
	}
}

// paymentWebhook 需要原始请求体做签名校验，不能先经过 JSON 绑定。
func paymentWebhook(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			fail(c, d, apperr.Invalid("cannot read body"))
			return
		}
		res, err := d.Payments.HandleWebhook(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
		if err != nil {
			middleware.RecordWebhookEvent("unknown", "rejected")
			fail(c, d, err)
			return
		}
		outcome := string(res.Outcome)
		if res.Duplicate {
			outcome = "duplicate"
		}
		middleware.RecordWebhookEvent(res.Type, outcome)
		if res.Order != nil {
			publish(c, d, queue.PaymentUpdated(res.Order))
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
