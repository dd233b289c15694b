package handlers

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/cursor"
	"github.com/Egham-7/substreams-bridge/internal/services/module_decoder"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/contracts"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/processors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed event list. Opening at a cursor resumes
// right after the event that carried it, like a real endpoint.
type scriptedTransport struct {
	events  []models.StreamEvent
	failAt  int
	failErr error
	opened  []models.Cursor
}

func eventCursor(ev models.StreamEvent) models.Cursor {
	if ev.Kind == models.EventUndo {
		return ev.Undo.LastValidCursor
	}
	return ev.Data.Cursor
}

func (s *scriptedTransport) Open(_ context.Context, req *models.StreamRequest) (contracts.EventReader, error) {
	s.opened = append(s.opened, req.Cursor)
	start := 0
	if !req.Cursor.IsStart() {
		for i, ev := range s.events {
			if eventCursor(ev) == req.Cursor {
				start = i + 1
			}
		}
	}
	return &scriptedReader{transport: s, pos: start}, nil
}

type scriptedReader struct {
	transport *scriptedTransport
	pos       int
}

func (r *scriptedReader) Next(ctx context.Context) (models.StreamEvent, error) {
	if err := ctx.Err(); err != nil {
		return models.StreamEvent{}, err
	}
	if r.transport.failErr != nil && r.pos == r.transport.failAt {
		return models.StreamEvent{}, r.transport.failErr
	}
	if r.pos >= len(r.transport.events) {
		return models.StreamEvent{}, io.EOF
	}
	ev := r.transport.events[r.pos]
	r.pos++
	return ev, nil
}

func (r *scriptedReader) Close() error { return nil }

// recordingStore remembers every persisted cursor in order
type recordingStore struct {
	*cursor.Memory
	mu        sync.Mutex
	persisted []models.Cursor
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: cursor.NewMemory()}
}

func (s *recordingStore) Persist(ctx context.Context, key string, c models.Cursor) error {
	s.mu.Lock()
	s.persisted = append(s.persisted, c)
	s.mu.Unlock()
	return s.Memory.Persist(ctx, key, c)
}

func newData(block uint64, cursor string, payload ...byte) models.StreamEvent {
	return models.StreamEvent{Kind: models.EventNewData, Data: &models.BlockScopedData{
		Block:   models.BlockRef{Number: block},
		Cursor:  models.Cursor(cursor),
		Module:  "graph_out",
		Payload: payload,
	}}
}

func newUndo(block uint64, cursor string) models.StreamEvent {
	return models.StreamEvent{Kind: models.EventUndo, Undo: &models.UndoSignal{
		LastValidBlock:  models.BlockRef{Number: block},
		LastValidCursor: models.Cursor(cursor),
	}}
}

const streamKey = "graph_out:test"

func newConsumer(t *testing.T, transport contracts.Transport, store cursor.Store, opts ...ConsumerOption) *Consumer {
	t.Helper()
	p, err := processors.NewDecodeProcessor(module_decoder.Default(), "graph_out", "test")
	require.NoError(t, err)
	return NewConsumer(transport, p, store, streamKey, "test", opts...)
}

func blocks(outputs []*models.DecodedOutput) []uint64 {
	var out []uint64
	for _, o := range outputs {
		out = append(out, o.Block.Number)
	}
	return out
}

func request() *models.StreamRequest {
	return &models.StreamRequest{Endpoint: "https://example", Module: "graph_out"}
}

func TestConsumeSkipsEmptyPayloadWithoutAdvancingCursor(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{
		newData(1, "c1", 0x08, 0x01),
		newData(2, "c2"),
		newData(3, "c3", 0x08, 0x03),
	}}
	store := newRecordingStore()

	outputs, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 3}, blocks(outputs))
	assert.Equal(t, []models.Cursor{"c3"}, store.persisted)
}

func TestConsumeWithOnlyEmptyPayloadsPersistsNothing(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{newData(1, "c1"), newData(2, "c2")}}
	store := newRecordingStore()

	outputs, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, outputs)
	assert.Empty(t, store.persisted)
}

func TestConsumeAppliesUndo(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{
		newData(1, "c1", 0x08, 0x01),
		newData(2, "c2", 0x08, 0x02),
		newData(3, "c3", 0x08, 0x03),
		newUndo(1, "c1"),
		newData(2, "c2b", 0x08, 0x22),
	}}
	store := newRecordingStore()

	var undone []*models.UndoSignal
	handler := contracts.UndoFunc(func(_ context.Context, s *models.UndoSignal) error {
		undone = append(undone, s)
		return nil
	})

	outputs, err := newConsumer(t, transport, store, WithUndoHandler(handler)).Consume(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2}, blocks(outputs))
	assert.Equal(t, []byte{0x08, 0x22}, outputs[1].Raw)
	assert.Equal(t, []models.Cursor{"c2b"}, store.persisted)
	require.Len(t, undone, 1)
	assert.Equal(t, uint64(1), undone[0].LastValidBlock.Number)
}

func TestConsumeUndoAsLastEventPersistsLastValidCursor(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{
		newData(1, "c1", 0x08, 0x01),
		newData(2, "c2", 0x08, 0x02),
		newUndo(1, "c1"),
	}}
	store := newRecordingStore()

	outputs, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, blocks(outputs))
	assert.Equal(t, []models.Cursor{"c1"}, store.persisted)
}

func TestConsumeUndoSinkRunsBeforeCursorPersist(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{
		newData(5, "c5", 0x08, 0x05),
		newUndo(4, "c4"),
	}}
	store := newRecordingStore()
	sink := &recordingSink{store: store}

	_, err := newConsumer(t, transport, store, WithSink(sink)).Consume(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, 1, sink.writes)
	assert.Equal(t, []int{1}, sink.undoSeenPersisted)
	assert.True(t, sink.closed)
}

type recordingSink struct {
	store             *recordingStore
	writes            int
	undoSeenPersisted []int
	closed            bool
}

func (s *recordingSink) Write(context.Context, *models.DecodedOutput) error {
	s.writes++
	return nil
}

func (s *recordingSink) Undo(context.Context, *models.UndoSignal) error {
	s.undoSeenPersisted = append(s.undoSeenPersisted, len(s.store.persisted))
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestConsumeResumesFromPersistedCursor(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{
		newData(1, "c1", 0x08, 0x01),
		newData(2, "c2", 0x08, 0x02),
		newData(3, "c3", 0x08, 0x03),
	}}
	store := cursor.NewMemory()
	require.NoError(t, store.Persist(context.Background(), streamKey, "c2"))

	outputs, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []uint64{3}, blocks(outputs))
	assert.Equal(t, []models.Cursor{"c2"}, transport.opened)
}

func TestConsumeIsIdempotentAcrossRuns(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{
		newData(1, "c1", 0x08, 0x01),
		newData(2, "c2", 0x08, 0x02),
	}}
	store := cursor.NewMemory()

	first, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, []models.Cursor{"", "c2"}, transport.opened)
}

func TestConsumePropagatesStreamError(t *testing.T) {
	transport := &scriptedTransport{
		events:  []models.StreamEvent{newData(1, "c1", 0x08, 0x01), newData(2, "c2", 0x08, 0x02)},
		failAt:  1,
		failErr: errors.New("wasm trap"),
	}
	store := newRecordingStore()

	outputs, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.Error(t, err)
	assert.Nil(t, outputs)
	assert.EqualError(t, err, "stream terminated with error: wasm trap")

	var streamErr *contracts.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, contracts.Terminated, streamErr.Type)
	assert.Empty(t, store.persisted)
}

func TestConsumeRetryAfterStreamErrorRedeliversUnits(t *testing.T) {
	transport := &scriptedTransport{
		events:  []models.StreamEvent{newData(1, "c1", 0x08, 0x01), newData(2, "c2", 0x08, 0x02)},
		failAt:  1,
		failErr: errors.New("connection reset"),
	}
	store := cursor.NewMemory()

	_, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.Error(t, err)

	transport.failErr = nil
	outputs, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, blocks(outputs))
	assert.Equal(t, []models.Cursor{"", ""}, transport.opened)

	saved, ok, err := store.Load(context.Background(), streamKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Cursor("c2"), saved)
}

func TestConsumeWithSinkPersistsEachWrittenUnit(t *testing.T) {
	transport := &scriptedTransport{
		events:  []models.StreamEvent{newData(1, "c1", 0x08, 0x01), newData(2, "c2", 0x08, 0x02)},
		failAt:  1,
		failErr: errors.New("connection reset"),
	}
	store := newRecordingStore()
	sink := &recordingSink{store: store}

	_, err := newConsumer(t, transport, store, WithSink(sink)).Consume(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, 1, sink.writes)
	assert.Equal(t, []models.Cursor{"c1"}, store.persisted)
}

func TestConsumeStopsOnDecodeError(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{
		newData(1, "c1", 0x0a, 0x09),
		newData(2, "c2", 0x08, 0x02),
	}}
	store := newRecordingStore()

	_, err := newConsumer(t, transport, store).Consume(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, models.ErrorTypeDecode, models.ErrorTypeOf(err))
	assert.Empty(t, store.persisted)
}

func TestConsumeCancelled(t *testing.T) {
	transport := &scriptedTransport{events: []models.StreamEvent{newData(1, "c1", 0x08, 0x01)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newConsumer(t, transport, nil).Consume(ctx, request())
	require.Error(t, err)
	assert.True(t, contracts.IsCancelled(err))
	assert.True(t, contracts.IsExpectedError(err))
}
