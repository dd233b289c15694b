package writers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/utils"

	"github.com/valyala/bytebufferpool"
)

// Collector accumulates the outputs of one stream call in delivery order
type Collector struct {
	outputs []*models.DecodedOutput
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Write(_ context.Context, out *models.DecodedOutput) error {
	c.outputs = append(c.outputs, out)
	return nil
}

// Undo drops every output above the last valid block
func (c *Collector) Undo(_ context.Context, signal *models.UndoSignal) error {
	kept := c.outputs[:0]
	for _, out := range c.outputs {
		if out.Block.Number <= signal.LastValidBlock.Number {
			kept = append(kept, out)
		}
	}
	clear(c.outputs[len(kept):])
	c.outputs = kept
	return nil
}

// Outputs returns the surviving outputs
func (c *Collector) Outputs() []*models.DecodedOutput {
	return c.outputs
}

func (c *Collector) Close() error {
	return nil
}

// RenderText renders outputs as a JSON array, one element per output
func RenderText(outputs []*models.DecodedOutput) (string, error) {
	if outputs == nil {
		outputs = []*models.DecodedOutput{}
	}
	out, err := utils.Render(func(buf *bytebufferpool.ByteBuffer) error {
		return json.NewEncoder(buf).Encode(outputs)
	})
	if err != nil {
		return "", fmt.Errorf("render outputs: %w", err)
	}
	// Encode terminates with a newline
	return strings.TrimSuffix(out, "\n"), nil
}

// RawPayloads returns the payload bytes of every output
func RawPayloads(outputs []*models.DecodedOutput) [][]byte {
	payloads := make([][]byte, len(outputs))
	for i, out := range outputs {
		payloads[i] = out.Raw
	}
	return payloads
}
