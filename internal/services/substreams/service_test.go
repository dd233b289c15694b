package substreams

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/database"
	"github.com/Egham-7/substreams-bridge/internal/services/module_decoder"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	pkg   *models.Package
	calls int
}

func (r *fakeResolver) Resolve(context.Context, string) (*models.Package, error) {
	r.calls++
	return r.pkg, nil
}

type fakeTransport struct {
	events   []models.StreamEvent
	requests []*models.StreamRequest
}

func (f *fakeTransport) Open(_ context.Context, req *models.StreamRequest) (contracts.EventReader, error) {
	f.requests = append(f.requests, req)
	return &fakeReader{events: f.events}, nil
}

type fakeReader struct {
	events []models.StreamEvent
}

func (r *fakeReader) Next(context.Context) (models.StreamEvent, error) {
	if len(r.events) == 0 {
		return models.StreamEvent{}, io.EOF
	}
	ev := r.events[0]
	r.events = r.events[1:]
	return ev, nil
}

func (r *fakeReader) Close() error { return nil }

func unit(block uint64, payload ...byte) models.StreamEvent {
	return models.StreamEvent{Kind: models.EventNewData, Data: &models.BlockScopedData{
		Block:   models.BlockRef{Number: block},
		Cursor:  models.Cursor("c"),
		Payload: payload,
	}}
}

func newService(t *testing.T, token func() (string, error)) (*Service, *fakeResolver, *fakeTransport) {
	t.Helper()
	resolver := &fakeResolver{pkg: &models.Package{Modules: []models.Module{
		{Name: "graph_out", InitialBlock: 100},
		{Name: "store_pools", InitialBlock: 100},
	}}}
	transport := &fakeTransport{events: []models.StreamEvent{unit(101, 0x08, 0x01), unit(102), unit(103, 0x08, 0x03)}}
	if token == nil {
		token = func() (string, error) { return "tok", nil }
	}
	svc := NewService(Deps{
		Token:     token,
		Resolver:  resolver,
		Registry:  module_decoder.Default(),
		Transport: transport,
	})
	return svc, resolver, transport
}

func strPtr(s string) *string { return &s }

func TestCallRequiresTokenBeforeNetwork(t *testing.T) {
	svc, resolver, transport := newService(t, func() (string, error) {
		return "", models.NewConfigurationError("missing API token", models.ErrMissingToken)
	})

	_, err := svc.Call(context.Background(), "mainnet.example:443", "uniswap-v3", "graph_out", nil, "req")
	require.ErrorIs(t, err, models.ErrMissingToken)
	assert.Zero(t, resolver.calls)
	assert.Empty(t, transport.requests)
}

func TestCallUnknownModuleFailsBeforeNetwork(t *testing.T) {
	svc, resolver, transport := newService(t, nil)

	_, err := svc.Call(context.Background(), "mainnet.example:443", "uniswap-v3", "store_pools", nil, "req")
	require.EqualError(t, err, "unknown module: store_pools")
	assert.Zero(t, resolver.calls)
	assert.Empty(t, transport.requests)
}

func TestCallModuleMissingFromPackage(t *testing.T) {
	svc, resolver, transport := newService(t, nil)
	resolver.pkg = &models.Package{Modules: []models.Module{{Name: "map_pools_created"}}}

	_, err := svc.Call(context.Background(), "mainnet.example:443", "uniswap-v3", "graph_out", nil, "req")
	require.ErrorIs(t, err, models.ErrModuleNotFound)
	assert.Empty(t, transport.requests)
}

func TestCallBuildsStreamRequest(t *testing.T) {
	svc, _, transport := newService(t, nil)

	outputs, err := svc.Call(context.Background(), "mainnet.example:443", "uniswap-v3", "graph_out", strPtr("+1:+2"), "req")
	require.NoError(t, err)
	assert.Len(t, outputs, 2)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, "https://mainnet.example:443", req.Endpoint)
	assert.Equal(t, "tok", req.Token)
	assert.Equal(t, models.BlockRange{Start: 101, Stop: 103}, req.Range)
	assert.Equal(t, "graph_out", req.Module)
}

func TestCallTextAndBytes(t *testing.T) {
	svc, _, _ := newService(t, nil)

	text, err := svc.CallText(context.Background(), "http://localhost:9000", "uniswap-v3", "graph_out", nil, "req")
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	require.Len(t, decoded, 2)
	value := decoded[0]["value"].(map[string]any)
	assert.Equal(t, module_decoder.EventsSchema, value["@type"])

	svc, _, _ = newService(t, nil)
	payloads, err := svc.CallBytes(context.Background(), "http://localhost:9000", "uniswap-v3", "graph_out", nil, "req")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x08, 0x01}, {0x08, 0x03}}, payloads)
}

func TestCallWritesSink(t *testing.T) {
	db, err := database.New(models.DatabaseConfig{
		Type:     models.SQLite,
		FilePath: filepath.Join(t.TempDir(), "sink.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	resolver := &fakeResolver{pkg: &models.Package{Modules: []models.Module{{Name: "graph_out", InitialBlock: 1}}}}
	transport := &fakeTransport{events: []models.StreamEvent{
		unit(1, 0x08, 0x01),
		unit(2, 0x08, 0x02),
		{Kind: models.EventUndo, Undo: &models.UndoSignal{LastValidBlock: models.BlockRef{Number: 1}, LastValidCursor: "c1"}},
	}}

	var hookCalls int
	svc := NewService(Deps{
		Token:     func() (string, error) { return "tok", nil },
		Resolver:  resolver,
		Registry:  module_decoder.Default(),
		Transport: transport,
		Sink:      db,
		Undo: contracts.UndoFunc(func(context.Context, *models.UndoSignal) error {
			hookCalls++
			return nil
		}),
	})

	outputs, err := svc.Call(context.Background(), "localhost:9000", "pkg", "graph_out", nil, "req")
	require.NoError(t, err)
	assert.Len(t, outputs, 1)
	assert.Equal(t, 1, hookCalls)

	var count int64
	require.NoError(t, db.Model(&models.OutputRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCallPropagatesResolverErrors(t *testing.T) {
	svc := NewService(Deps{
		Token:     func() (string, error) { return "tok", nil },
		Resolver:  failingResolver{},
		Registry:  module_decoder.Default(),
		Transport: &fakeTransport{},
	})

	_, err := svc.Call(context.Background(), "localhost:9000", "pkg", "graph_out", nil, "req")
	require.Error(t, err)
	assert.Equal(t, models.ErrorTypeResolution, models.ErrorTypeOf(err))
}

type failingResolver struct{}

func (failingResolver) Resolve(_ context.Context, locator string) (*models.Package, error) {
	return nil, models.NewResolutionError(locator, errors.New("404"))
}
