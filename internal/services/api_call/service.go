package api_call

import (
	"context"
	"encoding/json"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Service performs plain HTTP GET calls with caller-supplied headers
type Service struct {
	client *services.Client
}

// NewService creates an API call service on top of the shared HTTP client
func NewService(client *services.Client) *Service {
	return &Service{client: client}
}

// ParseHeaders decodes a flat JSON object into request headers. Values that
// are not strings are skipped, and a valid document that is not an object
// yields no headers.
func ParseHeaders(raw string) (map[string]string, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, models.NewValidationError("Invalid JSON for headers", err)
	}

	headers := make(map[string]string)
	obj, ok := doc.(map[string]any)
	if !ok {
		return headers, nil
	}
	for key, value := range obj {
		if s, ok := value.(string); ok {
			headers[key] = s
		}
	}
	return headers, nil
}

// Get fetches url and returns the response body as text. headersJSON may be nil.
func (s *Service) Get(ctx context.Context, url string, headersJSON *string, requestID string) (string, error) {
	var headers map[string]string
	if headersJSON != nil {
		var err error
		headers, err = ParseHeaders(*headersJSON)
		if err != nil {
			return "", err
		}
	}

	url = services.EnsureScheme(url)
	fiberlog.Debugf("[%s] GET %s with %d header(s)", requestID, url, len(headers))

	var text string
	err := s.client.Get(ctx, url, &text, &services.RequestOptions{
		Headers:         headers,
		ResponseType:    "text",
		AcceptAnyStatus: true,
		Retries:         -1,
	})
	if err != nil {
		return "", models.NewTransportError("Failed to send API call", err)
	}

	return text, nil
}
