package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Version is the protocol version sent in every request
const Version = "2.0"

// Request is a JSON-RPC 2.0 request body
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      int32           `json:"id"`
}

// Service performs JSON-RPC calls over HTTP POST
type Service struct {
	client *services.Client
}

// NewService creates a JSON-RPC service on top of the shared HTTP client
func NewService(client *services.Client) *Service {
	return &Service{client: client}
}

// NewRequest validates params and builds the request body
func NewRequest(method, params string, id int32) (*Request, error) {
	if !json.Valid([]byte(params)) {
		return nil, models.NewValidationError("Invalid JSON for parameters", fmt.Errorf("params: %q", params))
	}
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  json.RawMessage(params),
		ID:      id,
	}, nil
}

// Call sends method with params to endpoint and returns the response document
// re-serialized in compact form. Endpoints without a scheme get https://.
func (s *Service) Call(ctx context.Context, endpoint, method, params string, id int32, requestID string) (string, error) {
	req, err := NewRequest(method, params, id)
	if err != nil {
		return "", err
	}

	endpoint = services.EnsureScheme(endpoint)
	fiberlog.Debugf("[%s] JSON-RPC %s -> %s (id=%d)", requestID, method, endpoint, id)

	var body []byte
	err = s.client.Post(ctx, endpoint, req, &body, &services.RequestOptions{
		ResponseType:    "binary",
		AcceptAnyStatus: true,
		Retries:         -1,
	})
	if err != nil {
		return "", models.NewTransportError("Failed to send RPC call", err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return "", models.NewTransportError("Failed to parse RPC response", err)
	}

	return compact.String(), nil
}
