package processors

import (
	"context"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/module_decoder"
)

// DecodeProcessor decodes module outputs with the decoder registered for
// their module
type DecodeProcessor struct {
	module    string
	decoder   module_decoder.Decoder
	registry  module_decoder.Registry
	requestID string
}

// NewDecodeProcessor resolves the decoder of module up front, so an
// unregistered module fails before any stream is opened.
func NewDecodeProcessor(registry module_decoder.Registry, module, requestID string) (*DecodeProcessor, error) {
	decoder, err := registry.Lookup(module)
	if err != nil {
		return nil, err
	}
	return &DecodeProcessor{
		module:    module,
		decoder:   decoder,
		registry:  registry,
		requestID: requestID,
	}, nil
}

// Process decodes one unit. Units without payload yield no output.
func (p *DecodeProcessor) Process(_ context.Context, data *models.BlockScopedData) (*models.DecodedOutput, error) {
	if len(data.Payload) == 0 {
		return nil, nil
	}

	decoder := p.decoder
	module := p.module
	if data.Module != "" && data.Module != p.module {
		d, err := p.registry.Lookup(data.Module)
		if err != nil {
			return nil, err
		}
		decoder, module = d, data.Module
	}

	value, err := decoder.Decode(data.Payload)
	if err != nil {
		return nil, err
	}

	return &models.DecodedOutput{
		Module: module,
		Block:  data.Block,
		Cursor: data.Cursor,
		Value:  value,
		Raw:    data.Payload,
	}, nil
}

// Module returns the requested output module
func (p *DecodeProcessor) Module() string {
	return p.module
}
