// Package substreams implements the stream call: it resolves the package,
// range and decoder of a module, then consumes its block stream.
package substreams

import (
	"context"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services"
	"github.com/Egham-7/substreams-bridge/internal/services/block_range"
	"github.com/Egham-7/substreams-bridge/internal/services/cursor"
	"github.com/Egham-7/substreams-bridge/internal/services/database"
	"github.com/Egham-7/substreams-bridge/internal/services/module_decoder"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/contracts"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/handlers"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/processors"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/writers"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// PackageResolver loads a package definition from a locator
type PackageResolver interface {
	Resolve(ctx context.Context, locator string) (*models.Package, error)
}

// Deps are the collaborators of a Service. Token, Resolver, Registry and
// Transport are required.
type Deps struct {
	Token     func() (string, error)
	Resolver  PackageResolver
	Registry  module_decoder.Registry
	Transport contracts.Transport
	Cursors   cursor.Store
	// Sink enables the database output sink and its rollback on undo
	Sink *database.DB
	// Undo is the host hook for durable undo effects
	Undo            contracts.UndoHandler
	FinalBlocksOnly bool
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.Cursors == nil {
		deps.Cursors = cursor.Nop{}
	}
	return &Service{deps: deps}
}

// Call streams module and returns its outputs. blockRange may be nil.
//
// Everything that can fail without the network fails first: the token, then
// the decoder lookup. Only then is the package fetched and the stream opened.
func (s *Service) Call(ctx context.Context, endpoint, locator, module string, blockRange *string, requestID string) ([]*models.DecodedOutput, error) {
	token, err := s.deps.Token()
	if err != nil {
		return nil, err
	}

	processor, err := processors.NewDecodeProcessor(s.deps.Registry, module, requestID)
	if err != nil {
		return nil, err
	}

	pkg, err := s.deps.Resolver.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}

	expr := ""
	if blockRange != nil {
		expr = *blockRange
	}
	rng, err := block_range.Resolve(pkg, module, expr)
	if err != nil {
		return nil, err
	}

	endpoint = services.EnsureScheme(endpoint)
	fiberlog.Infof("[%s] Streaming %s from %s, blocks %d to %d", requestID, module, endpoint, rng.Start, rng.Stop)

	req := &models.StreamRequest{
		Endpoint:        endpoint,
		Token:           token,
		Module:          module,
		Range:           rng,
		Package:         pkg,
		FinalBlocksOnly: s.deps.FinalBlocksOnly,
	}

	key := cursor.Key(endpoint, locator, module, expr)
	var opts []handlers.ConsumerOption
	if s.deps.Sink != nil {
		opts = append(opts, handlers.WithSink(writers.NewDatabaseSink(s.deps.Sink, key, requestID)))
	}
	if s.deps.Undo != nil {
		opts = append(opts, handlers.WithUndoHandler(s.deps.Undo))
	}

	consumer := handlers.NewConsumer(s.deps.Transport, processor, s.deps.Cursors, key, requestID, opts...)
	return consumer.Consume(ctx, req)
}

// CallText returns the outputs rendered as a JSON array
func (s *Service) CallText(ctx context.Context, endpoint, locator, module string, blockRange *string, requestID string) (string, error) {
	outputs, err := s.Call(ctx, endpoint, locator, module, blockRange, requestID)
	if err != nil {
		return "", err
	}
	return writers.RenderText(outputs)
}

// CallBytes returns the raw payload of every output
func (s *Service) CallBytes(ctx context.Context, endpoint, locator, module string, blockRange *string, requestID string) ([][]byte, error) {
	outputs, err := s.Call(ctx, endpoint, locator, module, blockRange, requestID)
	if err != nil {
		return nil, err
	}
	return writers.RawPayloads(outputs), nil
}
