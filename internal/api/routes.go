package api

import "github.com/gofiber/fiber/v2"

// Register mounts every route of the HTTP facade on app
func Register(app *fiber.App, caller Caller, checks map[string]Check) {
	calls := NewBridgeHandler(caller)
	health := NewHealthHandler(checks)

	v1 := app.Group("/v1")
	v1.Post("/rpc", calls.RPC)
	v1.Post("/api", calls.API)
	v1.Post("/stream", calls.Stream)

	app.Get("/health", health.HealthCheck)
}
