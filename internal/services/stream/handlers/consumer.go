package handlers

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/cursor"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/contracts"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/writers"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Consumer drives one stream call: it opens the transport at the persisted
// cursor, decodes every unit and applies undo signals. With a sink every
// unit is durable once written, so the cursor is persisted per event.
// Without one the outputs only exist in memory until they are returned, so
// the last surviving cursor is persisted at the natural end of the stream.
type Consumer struct {
	transport contracts.Transport
	processor contracts.UnitProcessor
	cursors   cursor.Store
	sink      contracts.OutputWriter
	undo      contracts.UndoHandler
	streamKey string
	requestID string
}

type ConsumerOption func(*Consumer)

// WithSink mirrors every output into w, which must write durably. When w is
// also an UndoHandler it receives undo signals before the host handler.
func WithSink(w contracts.OutputWriter) ConsumerOption {
	return func(c *Consumer) {
		c.sink = w
	}
}

// WithUndoHandler registers the host's handler for durable undo effects
func WithUndoHandler(h contracts.UndoHandler) ConsumerOption {
	return func(c *Consumer) {
		c.undo = h
	}
}

// NewConsumer creates a consumer. A nil store means cursor.Nop.
func NewConsumer(
	transport contracts.Transport,
	processor contracts.UnitProcessor,
	cursors cursor.Store,
	streamKey, requestID string,
	opts ...ConsumerOption,
) *Consumer {
	if cursors == nil {
		cursors = cursor.Nop{}
	}
	c := &Consumer{
		transport: transport,
		processor: processor,
		cursors:   cursors,
		streamKey: streamKey,
		requestID: requestID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type consumeStats struct {
	units   int64
	skipped int64
	undos   int64
}

// progress is the cursor of the last handled event that has not been
// persisted yet
type progress struct {
	cursor models.Cursor
	dirty  bool
}

func (p *progress) advance(next models.Cursor) {
	p.cursor = next
	p.dirty = true
}

// Consume runs the stream to its end and returns the surviving outputs in
// delivery order
func (c *Consumer) Consume(ctx context.Context, req *models.StreamRequest) ([]*models.DecodedOutput, error) {
	startTime := time.Now()
	var stats consumeStats

	module := c.processor.Module()
	fiberlog.Infof("[%s] Starting stream for module %s on %s", c.requestID, module, req.Endpoint)

	open := *req
	saved, ok, err := c.cursors.Load(ctx, c.streamKey)
	if err != nil {
		return nil, contracts.NewInternalError(c.requestID, "load cursor", err)
	}
	if ok && !saved.IsStart() {
		fiberlog.Infof("[%s] Resuming from persisted cursor", c.requestID)
		open.Cursor = saved
	}

	reader, err := c.transport.Open(ctx, &open)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contracts.NewCancelledError(c.requestID, ctx.Err())
		}
		return nil, err
	}

	collector := writers.NewCollector()
	var pending progress

	defer func() {
		duration := time.Since(startTime)
		fiberlog.Infof("[%s] Stream finished: %d units, %d skipped, %d undo signals in %v",
			c.requestID, stats.units, stats.skipped, stats.undos, duration)

		if err := reader.Close(); err != nil {
			fiberlog.Errorf("[%s] Error closing reader: %v", c.requestID, err)
		}
		if c.sink != nil {
			if err := c.sink.Close(); err != nil {
				fiberlog.Errorf("[%s] Error closing sink: %v", c.requestID, err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fiberlog.Infof("[%s] Context cancelled, stopping stream", c.requestID)
			return nil, contracts.NewCancelledError(c.requestID, ctx.Err())
		default:
		}

		ev, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			fiberlog.Infof("[%s] Stream completed naturally", c.requestID)
			outputs := collector.Outputs()
			if pending.dirty {
				if err := c.cursors.Persist(ctx, c.streamKey, pending.cursor); err != nil {
					return nil, contracts.NewInternalError(c.requestID, "persist cursor", err)
				}
			}
			return outputs, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, contracts.NewCancelledError(c.requestID, ctx.Err())
			}
			return nil, contracts.NewTerminatedError(c.requestID, err)
		}

		switch ev.Kind {
		case models.EventNewData:
			emitted, err := c.handleData(ctx, collector, &pending, ev.Data)
			if err != nil {
				return nil, err
			}
			if emitted {
				stats.units++
			} else {
				stats.skipped++
			}
		case models.EventUndo:
			if err := c.handleUndo(ctx, collector, &pending, ev.Undo); err != nil {
				return nil, err
			}
			stats.undos++
		}

		if stats.units > 0 && stats.units%100 == 0 {
			fiberlog.Debugf("[%s] Stream progress: %d units in %v", c.requestID, stats.units, time.Since(startTime))
		}
	}
}

// handleData reports whether the unit produced an output. Empty units leave
// the cursor where it was.
func (c *Consumer) handleData(ctx context.Context, collector *writers.Collector, pending *progress, data *models.BlockScopedData) (bool, error) {
	out, err := c.processor.Process(ctx, data)
	if err != nil {
		return false, err
	}
	if out == nil {
		fiberlog.Debugf("[%s] Skipping empty unit at block %d", c.requestID, data.Block.Number)
		return false, nil
	}

	if err := collector.Write(ctx, out); err != nil {
		return false, contracts.NewInternalError(c.requestID, "collect output", err)
	}
	if c.sink != nil {
		if err := c.sink.Write(ctx, out); err != nil {
			return false, contracts.NewInternalError(c.requestID, "write output", err)
		}
	}

	if err := c.commit(ctx, pending, data.Cursor); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Consumer) handleUndo(ctx context.Context, collector *writers.Collector, pending *progress, signal *models.UndoSignal) error {
	fiberlog.Infof("[%s] Undo signal: rolling back to block %d", c.requestID, signal.LastValidBlock.Number)

	if err := collector.Undo(ctx, signal); err != nil {
		return contracts.NewInternalError(c.requestID, "roll back outputs", err)
	}
	if h, ok := c.sink.(contracts.UndoHandler); ok {
		if err := h.Undo(ctx, signal); err != nil {
			return contracts.NewInternalError(c.requestID, "roll back sink", err)
		}
	}
	if c.undo != nil {
		if err := c.undo.Undo(ctx, signal); err != nil {
			return contracts.NewInternalError(c.requestID, "undo handler", err)
		}
	}

	return c.commit(ctx, pending, signal.LastValidCursor)
}

// commit persists next right away when a sink holds the data, otherwise it
// is kept pending until the outputs are returned
func (c *Consumer) commit(ctx context.Context, pending *progress, next models.Cursor) error {
	if c.sink == nil {
		pending.advance(next)
		return nil
	}
	if err := c.cursors.Persist(ctx, c.streamKey, next); err != nil {
		return contracts.NewInternalError(c.requestID, "persist cursor", err)
	}
	return nil
}

// RequestID returns the request ID
func (c *Consumer) RequestID() string {
	return c.requestID
}
