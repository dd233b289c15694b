// Package bridge maps the foreign entry points onto the service layer. Every
// call runs as one executor task and reports failure in-band: text results
// carry an "Error: " prefix, byte results return an error the caller turns
// into a null pointer.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Egham-7/substreams-bridge/internal/abi"
	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/executor"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// ErrorPrefix marks a text result as a failure
const ErrorPrefix = "Error: "

type RPCCaller interface {
	Call(ctx context.Context, endpoint, method, params string, id int32, requestID string) (string, error)
}

type APICaller interface {
	Get(ctx context.Context, url string, headersJSON *string, requestID string) (string, error)
}

type StreamCaller interface {
	CallText(ctx context.Context, endpoint, locator, module string, blockRange *string, requestID string) (string, error)
	CallBytes(ctx context.Context, endpoint, locator, module string, blockRange *string, requestID string) ([][]byte, error)
}

// Bridge serves the boundary calls. It is safe for concurrent use.
type Bridge struct {
	exec    *executor.Executor
	rpc     RPCCaller
	api     APICaller
	stream  StreamCaller
	closers []io.Closer
	checks  map[string]func(context.Context) error
}

// New builds a bridge over already constructed services. closers are closed
// by Close in reverse order.
func New(exec *executor.Executor, rpc RPCCaller, api APICaller, stream StreamCaller, closers ...io.Closer) *Bridge {
	return &Bridge{
		exec:    exec,
		rpc:     rpc,
		api:     api,
		stream:  stream,
		closers: closers,
	}
}

// RPCCall sends a JSON-RPC 2.0 request and returns the compact response
func (b *Bridge) RPCCall(endpoint, method, params *string, id int32) string {
	if endpoint == nil || method == nil || params == nil {
		return abi.NullPointerText
	}
	return textResult(b.RPCCallContext(context.Background(), *endpoint, *method, *params, id))
}

// APICall performs a GET with optional JSON object headers
func (b *Bridge) APICall(url, headers *string) string {
	if url == nil {
		return abi.NullPointerText
	}
	return textResult(b.APICallContext(context.Background(), *url, headers))
}

// StreamCall streams a module and returns its outputs as a JSON array.
// blockRange may be nil.
func (b *Bridge) StreamCall(endpoint, locator, module, blockRange *string) string {
	if endpoint == nil || locator == nil || module == nil {
		return abi.NullPointerText
	}
	return textResult(b.StreamCallContext(context.Background(), *endpoint, *locator, *module, blockRange))
}

// StreamCallBytes streams a module and returns the raw payload of every output
func (b *Bridge) StreamCallBytes(endpoint, locator, module, blockRange *string) ([][]byte, error) {
	if endpoint == nil || locator == nil || module == nil {
		return nil, models.NewBoundaryError(models.ErrNullPointer)
	}
	return b.StreamCallBytesContext(context.Background(), *endpoint, *locator, *module, blockRange)
}

// RPCCallContext is RPCCall for Go callers
func (b *Bridge) RPCCallContext(ctx context.Context, endpoint, method, params string, id int32) (string, error) {
	requestID := requestIDFrom(ctx)
	return run(ctx, b.exec, requestID, func(ctx context.Context) (string, error) {
		return b.rpc.Call(ctx, endpoint, method, params, id, requestID)
	})
}

// APICallContext is APICall for Go callers
func (b *Bridge) APICallContext(ctx context.Context, url string, headers *string) (string, error) {
	requestID := requestIDFrom(ctx)
	return run(ctx, b.exec, requestID, func(ctx context.Context) (string, error) {
		return b.api.Get(ctx, url, headers, requestID)
	})
}

// StreamCallContext is StreamCall for Go callers
func (b *Bridge) StreamCallContext(ctx context.Context, endpoint, locator, module string, blockRange *string) (string, error) {
	requestID := requestIDFrom(ctx)
	return run(ctx, b.exec, requestID, func(ctx context.Context) (string, error) {
		return b.stream.CallText(ctx, endpoint, locator, module, blockRange, requestID)
	})
}

// StreamCallBytesContext is StreamCallBytes for Go callers
func (b *Bridge) StreamCallBytesContext(ctx context.Context, endpoint, locator, module string, blockRange *string) ([][]byte, error) {
	requestID := requestIDFrom(ctx)
	return run(ctx, b.exec, requestID, func(ctx context.Context) ([][]byte, error) {
		return b.stream.CallBytes(ctx, endpoint, locator, module, blockRange, requestID)
	})
}

func run[T any](ctx context.Context, exec *executor.Executor, requestID string, fn func(context.Context) (T, error)) (T, error) {
	out, err := executor.Run(ctx, exec, fn)
	if err != nil {
		fiberlog.Errorf("[%s] Call failed: %v", requestID, err)
	}
	return out, err
}

func textResult(out string, err error) string {
	if err != nil {
		return FormatError(err)
	}
	return out
}

// FormatError renders err as an in-band text failure
func FormatError(err error) string {
	return fmt.Sprintf("%s%v", ErrorPrefix, err)
}

// Checks returns the health checks of the infrastructure behind the bridge
func (b *Bridge) Checks() map[string]func(context.Context) error {
	return b.checks
}

// Close releases every owned resource. The executor is not stopped.
func (b *Bridge) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type requestIDKey struct{}

// WithRequestID makes calls made with ctx log under id instead of a fresh one
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
