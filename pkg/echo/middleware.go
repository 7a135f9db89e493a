// Package echo adapts the x402 payment gate to echo middleware chains.
package echo

import (
	"github.com/labstack/echo/v4"

	"github.com/pitstop/gas-station/pkg/x402"
)

// StoreContextKey is where the request-scoped x402 store lands in the echo
// context when the gate lets the request through.
const StoreContextKey = "x402.store"

// PaymentGate wraps a route with the x402 payment gate.
func PaymentGate(gate *x402.Gate, cfg x402.GateConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result := gate.Process(c.Request().Context(), c.Request(), cfg)

			if result.SettlementHeader != "" {
				c.Response().Header().Set(x402.PaymentResponseHeader, result.SettlementHeader)
			}
			if result.Store != nil {
				c.Set(StoreContextKey, result.Store)
			}

			if result.Body != nil {
				return c.JSON(result.Status, result.Body)
			}

			return next(c)
		}
	}
}

// StoreFrom extracts the request-scoped x402 store placed by PaymentGate.
func StoreFrom(c echo.Context) (*x402.Store, bool) {
	store, ok := c.Get(StoreContextKey).(*x402.Store)
	return store, ok
}
