package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/bridge"
	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/contracts"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Caller is the part of the bridge the HTTP facade serves
type Caller interface {
	RPCCallContext(ctx context.Context, endpoint, method, params string, id int32) (string, error)
	APICallContext(ctx context.Context, url string, headers *string) (string, error)
	StreamCallContext(ctx context.Context, endpoint, locator, module string, blockRange *string) (string, error)
	StreamCallBytesContext(ctx context.Context, endpoint, locator, module string, blockRange *string) ([][]byte, error)
}

// RPCRequest is the body of POST /v1/rpc
type RPCRequest struct {
	Endpoint string          `json:"endpoint"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params"`
	ID       int32           `json:"id"`
}

// APIRequest is the body of POST /v1/api
type APIRequest struct {
	URL     string          `json:"url"`
	Headers json.RawMessage `json:"headers,omitzero"`
}

// StreamRequest is the body of POST /v1/stream
type StreamRequest struct {
	Endpoint string  `json:"endpoint"`
	Package  string  `json:"package"`
	Module   string  `json:"module"`
	Range    *string `json:"range,omitzero"`
	// Format is "json" (default) or "bytes"
	Format string `json:"format,omitzero"`
}

// StreamBytesResponse carries raw payloads, base64 encoded by encoding/json
type StreamBytesResponse struct {
	Payloads [][]byte `json:"payloads"`
}

// BridgeHandler exposes the bridge calls over HTTP
type BridgeHandler struct {
	caller Caller
}

func NewBridgeHandler(caller Caller) *BridgeHandler {
	return &BridgeHandler{caller: caller}
}

// RPC handles POST /v1/rpc
func (h *BridgeHandler) RPC(c *fiber.Ctx) error {
	var req RPCRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, fmt.Sprintf("Invalid request body: %s", err.Error()))
	}
	if req.Endpoint == "" || req.Method == "" {
		return badRequest(c, "endpoint and method are required")
	}

	params := string(req.Params)
	if params == "" {
		params = "[]"
	}

	out, err := h.caller.RPCCallContext(callContext(c), req.Endpoint, req.Method, params, req.ID)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(out)
}

// API handles POST /v1/api
func (h *BridgeHandler) API(c *fiber.Ctx) error {
	var req APIRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, fmt.Sprintf("Invalid request body: %s", err.Error()))
	}
	if req.URL == "" {
		return badRequest(c, "url is required")
	}

	var headers *string
	if len(req.Headers) > 0 && string(req.Headers) != "null" {
		s := string(req.Headers)
		headers = &s
	}

	out, err := h.caller.APICallContext(callContext(c), req.URL, headers)
	if err != nil {
		return writeError(c, err)
	}
	return c.SendString(out)
}

// Stream handles POST /v1/stream
func (h *BridgeHandler) Stream(c *fiber.Ctx) error {
	var req StreamRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, fmt.Sprintf("Invalid request body: %s", err.Error()))
	}
	if req.Endpoint == "" || req.Package == "" || req.Module == "" {
		return badRequest(c, "endpoint, package and module are required")
	}

	switch req.Format {
	case "", "json":
		out, err := h.caller.StreamCallContext(callContext(c), req.Endpoint, req.Package, req.Module, req.Range)
		if err != nil {
			return writeError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(out)
	case "bytes":
		payloads, err := h.caller.StreamCallBytesContext(callContext(c), req.Endpoint, req.Package, req.Module, req.Range)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(StreamBytesResponse{Payloads: payloads})
	default:
		return badRequest(c, fmt.Sprintf("unsupported format: %s", req.Format))
	}
}

// callContext tags the call with the request ID set by the requestid middleware
func callContext(c *fiber.Ctx) context.Context {
	id := c.GetRespHeader(fiber.HeaderXRequestID)
	if id == "" {
		return c.UserContext()
	}
	return bridge.WithRequestID(c.UserContext(), id)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": &models.AppError{Type: models.ErrorTypeValidation, Message: message},
	})
}

// writeError maps service errors onto status codes. Stream terminations
// surface as bad gateway, cancellations as 499.
func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	var appErr *models.AppError
	var streamErr *contracts.StreamError
	switch {
	case errors.As(err, &appErr):
		status = appErr.GetStatusCode()
	case errors.As(err, &streamErr):
		switch streamErr.Type {
		case contracts.Cancelled:
			status = 499
		case contracts.Terminated, contracts.TransportFailure:
			status = fiber.StatusBadGateway
		}
	}

	if status >= fiber.StatusInternalServerError {
		fiberlog.Errorf("Request failed: %v", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": models.SanitizeError(err)})
}
