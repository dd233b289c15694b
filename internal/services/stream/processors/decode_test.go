package processors

import (
	"context"
	"testing"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/module_decoder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProcessor(t *testing.T) {
	p, err := NewDecodeProcessor(module_decoder.Default(), "graph_out", "req")
	require.NoError(t, err)
	assert.Equal(t, "graph_out", p.Module())

	out, err := p.Process(context.Background(), &models.BlockScopedData{
		Block:   models.BlockRef{ID: "0x01", Number: 7},
		Cursor:  "c7",
		Module:  "graph_out",
		Payload: []byte{0x08, 0x2a},
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, uint64(7), out.Block.Number)
	assert.Equal(t, models.Cursor("c7"), out.Cursor)
	assert.Equal(t, []byte{0x08, 0x2a}, out.Raw)

	decoded, ok := out.Value.(*module_decoder.Decoded)
	require.True(t, ok)
	assert.Equal(t, module_decoder.EventsSchema, decoded.Schema)
}

func TestDecodeProcessorSkipsEmptyPayload(t *testing.T) {
	p, err := NewDecodeProcessor(module_decoder.Default(), "graph_out", "req")
	require.NoError(t, err)

	out, err := p.Process(context.Background(), &models.BlockScopedData{Cursor: "c1"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDecodeProcessorUnknownModule(t *testing.T) {
	_, err := NewDecodeProcessor(module_decoder.Default(), "store_pools", "req")
	require.ErrorIs(t, err, models.ErrUnknownModule)

	p, err := NewDecodeProcessor(module_decoder.Default(), "graph_out", "req")
	require.NoError(t, err)
	_, err = p.Process(context.Background(), &models.BlockScopedData{Module: "store_pools", Payload: []byte{0x08, 0x01}})
	require.ErrorIs(t, err, models.ErrUnknownModule)
}

func TestDecodeProcessorMalformedPayload(t *testing.T) {
	p, err := NewDecodeProcessor(module_decoder.Default(), "map_pools_created", "req")
	require.NoError(t, err)

	_, err = p.Process(context.Background(), &models.BlockScopedData{Payload: []byte{0x0a, 0x09}})
	require.Error(t, err)
	assert.Equal(t, models.ErrorTypeDecode, models.ErrorTypeOf(err))
}
