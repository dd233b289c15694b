package bridge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Egham-7/substreams-bridge/internal/abi"
	"github.com/Egham-7/substreams-bridge/internal/config"
	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services/executor"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct{}

func (fakeRPC) Call(_ context.Context, endpoint, method, params string, id int32, _ string) (string, error) {
	if method == "boom" {
		return "", errors.New("connection refused")
	}
	if method == "panic" {
		panic("rpc exploded")
	}
	return fmt.Sprintf(`{"endpoint":%q,"method":%q,"params":%s,"id":%d}`, endpoint, method, params, id), nil
}

type fakeAPI struct{}

func (fakeAPI) Get(_ context.Context, url string, headers *string, _ string) (string, error) {
	if headers == nil {
		return "GET " + url, nil
	}
	return "GET " + url + " " + *headers, nil
}

type fakeStream struct {
	err error
}

func (f fakeStream) CallText(_ context.Context, _, _, module string, blockRange *string, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if blockRange == nil {
		return "[" + module + "]", nil
	}
	return "[" + module + " " + *blockRange + "]", nil
}

func (f fakeStream) CallBytes(context.Context, string, string, string, *string, string) ([][]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]byte{{1, 2}, {3}}, nil
}

type countingCloser struct {
	order *[]string
	name  string
}

func (c countingCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func newTestBridge(t *testing.T, stream fakeStream) *Bridge {
	t.Helper()
	exec := executor.New()
	t.Cleanup(exec.Stop)
	return New(exec, fakeRPC{}, fakeAPI{}, stream)
}

func ptr(s string) *string { return &s }

func TestNullPointers(t *testing.T) {
	b := newTestBridge(t, fakeStream{})

	assert.Equal(t, abi.NullPointerText, b.RPCCall(nil, ptr("m"), ptr("[]"), 1))
	assert.Equal(t, abi.NullPointerText, b.RPCCall(ptr("e"), ptr("m"), nil, 1))
	assert.Equal(t, abi.NullPointerText, b.APICall(nil, ptr("{}")))
	assert.Equal(t, abi.NullPointerText, b.StreamCall(ptr("e"), nil, ptr("graph_out"), nil))

	out, err := b.StreamCallBytes(ptr("e"), ptr("p"), nil, nil)
	assert.Nil(t, out)
	require.ErrorIs(t, err, models.ErrNullPointer)
}

func TestTextCalls(t *testing.T) {
	b := newTestBridge(t, fakeStream{})

	assert.Equal(t, `{"endpoint":"e","method":"eth_chainId","params":[],"id":3}`, b.RPCCall(ptr("e"), ptr("eth_chainId"), ptr("[]"), 3))
	assert.Equal(t, "GET http://x", b.APICall(ptr("http://x"), nil))
	assert.Equal(t, `GET http://x {"a":"b"}`, b.APICall(ptr("http://x"), ptr(`{"a":"b"}`)))
	assert.Equal(t, "[graph_out]", b.StreamCall(ptr("e"), ptr("p"), ptr("graph_out"), nil))
	assert.Equal(t, "[graph_out :+5]", b.StreamCall(ptr("e"), ptr("p"), ptr("graph_out"), ptr(":+5")))
}

func TestErrorsArePrefixed(t *testing.T) {
	b := newTestBridge(t, fakeStream{err: models.NewUnknownModuleError("store_pools")})

	assert.Equal(t, "Error: connection refused", b.RPCCall(ptr("e"), ptr("boom"), ptr("[]"), 1))
	assert.Equal(t, "Error: unknown module: store_pools", b.StreamCall(ptr("e"), ptr("p"), ptr("store_pools"), nil))

	out, err := b.StreamCallBytes(ptr("e"), ptr("p"), ptr("store_pools"), nil)
	assert.Nil(t, out)
	require.ErrorIs(t, err, models.ErrUnknownModule)
}

func TestPanicBecomesError(t *testing.T) {
	b := newTestBridge(t, fakeStream{})

	out := b.RPCCall(ptr("e"), ptr("panic"), ptr("[]"), 1)
	assert.True(t, strings.HasPrefix(out, ErrorPrefix), out)
	assert.Contains(t, out, "rpc exploded")
}

func TestBytesCall(t *testing.T) {
	b := newTestBridge(t, fakeStream{})

	out, err := b.StreamCallBytes(ptr("e"), ptr("p"), ptr("graph_out"), nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2}, {3}}, out)
}

func TestConcurrentCalls(t *testing.T) {
	b := newTestBridge(t, fakeStream{})

	var wg sync.WaitGroup
	results := make([]string, 64)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = b.RPCCall(ptr("e"), ptr("eth_blockNumber"), ptr("[]"), int32(i))
		}()
	}
	wg.Wait()

	for i, out := range results {
		assert.Contains(t, out, fmt.Sprintf(`"id":%d`, i))
	}
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	var order []string
	b := New(executor.New(), nil, nil, nil,
		countingCloser{&order, "first"},
		countingCloser{&order, "second"},
	)

	require.NoError(t, b.Close())
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestNewFromConfigDefaults(t *testing.T) {
	t.Setenv(config.TokenEnvVar, "")
	exec := executor.New()
	t.Cleanup(exec.Stop)

	b, err := NewFromConfigWithExecutor(config.Default(), exec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	// the token is checked before any network access
	out := b.StreamCall(ptr("localhost:1"), ptr("uniswap-v3@v0.2.9"), ptr("graph_out"), nil)
	assert.Equal(t, "Error: missing API token: "+models.ErrMissingToken.Error(), out)

	out = b.StreamCall(ptr("localhost:1"), ptr("uniswap-v3"), ptr("store_pools"), nil)
	assert.True(t, strings.HasPrefix(out, ErrorPrefix))
}

func TestNewFromConfigWithDatabaseAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Database = &models.DatabaseConfig{
		Type:     models.SQLite,
		FilePath: filepath.Join(t.TempDir(), "bridge.db"),
	}
	cfg.Sink.Enabled = true
	cfg.Cursor.Backend = models.CursorBackendRedis
	cfg.Cursor.RedisURL = "redis://" + mr.Addr()
	require.NoError(t, cfg.Validate())

	exec := executor.New()
	t.Cleanup(exec.Stop)

	b, err := NewFromConfigWithExecutor(cfg, exec)
	require.NoError(t, err)

	checks := b.Checks()
	require.Len(t, checks, 2)
	for name, check := range checks {
		assert.NoError(t, check(context.Background()), name)
	}
	require.NoError(t, b.Close())
}

func TestNewFromConfigBadRedisURL(t *testing.T) {
	cfg := config.Default()
	cfg.Cursor.Backend = models.CursorBackendRedis
	cfg.Cursor.RedisURL = "not-a-url"

	exec := executor.New()
	t.Cleanup(exec.Stop)

	_, err := NewFromConfigWithExecutor(cfg, exec)
	require.ErrorContains(t, err, "failed to parse Redis URL")
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Equal(t, "req-1", requestIDFrom(WithRequestID(context.Background(), "req-1")))
	assert.Len(t, requestIDFrom(context.Background()), 36)
	assert.Len(t, requestIDFrom(WithRequestID(context.Background(), "")), 36)
}
