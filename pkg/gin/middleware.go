// Package gin adapts the x402 payment gate to gin handler chains.
package gin

import (
	"github.com/gin-gonic/gin"

	"github.com/pitstop/gas-station/pkg/x402"
)

// StoreContextKey is where the request-scoped x402 store lands in the gin
// context when the gate lets the request through.
const StoreContextKey = "x402.store"

// PaymentGate wraps a route with the x402 payment gate. Rejections are
// written here; on success the settlement receipt header is set and either
// the gate's synthesized response is written or control passes to the route
// handler.
func PaymentGate(gate *x402.Gate, cfg x402.GateConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := gate.Process(c.Request.Context(), c.Request, cfg)

		if result.SettlementHeader != "" {
			c.Header(x402.PaymentResponseHeader, result.SettlementHeader)
		}
		if result.Store != nil {
			c.Set(StoreContextKey, result.Store)
		}

		if result.Body != nil {
			c.AbortWithStatusJSON(result.Status, result.Body)
			return
		}

		c.Next()
	}
}

// StoreFrom extracts the request-scoped x402 store placed by PaymentGate.
func StoreFrom(c *gin.Context) (*x402.Store, bool) {
	value, ok := c.Get(StoreContextKey)
	if !ok {
		return nil, false
	}
	store, ok := value.(*x402.Store)
	return store, ok
}
