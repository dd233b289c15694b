package package_resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPackage() []byte {
	return wire.EncodePackage(&models.Package{
		Modules: []models.Module{{Name: "map_pools_created", InitialBlock: 12369621}},
	})
}

func newResolver(t *testing.T, registry string) *Resolver {
	t.Helper()
	cfg := services.DefaultClientConfig("")
	cfg.RetryDelay = time.Millisecond
	client := services.NewClientWithConfig(cfg)
	t.Cleanup(client.Close)

	r, err := NewResolver(client, models.RegistryConfig{URL: registry, CacheSize: 4})
	require.NoError(t, err)
	return r
}

func TestParseRegistryLocator(t *testing.T) {
	cases := []struct {
		input   string
		name    string
		version string
	}{
		{"foo@v1.2.3", "foo", "v1.2.3"},
		{"foo@1.2.3", "foo", "1.2.3"},
		{"foo", "foo", "latest"},
		{"foo@", "foo", "latest"},
		{"foo@latest", "foo", "latest"},
		{"uniswap-v3_pools", "uniswap-v3_pools", "latest"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			name, version, err := ParseRegistryLocator(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.name, name)
			assert.Equal(t, tc.version, version)
		})
	}

	assert.Equal(t, "https://spkg.io/v1/packages/foo/v1.2.3", RegistryURL(models.DefaultRegistryURL, "foo", "v1.2.3"))
	assert.Equal(t, "https://spkg.io/v1/packages/foo/latest", RegistryURL(models.DefaultRegistryURL+"/", "foo", "latest"))
}

func TestParseRegistryLocatorErrors(t *testing.T) {
	_, _, err := ParseRegistryLocator("Foo Bar")
	require.ErrorIs(t, err, models.ErrInvalidPackage)
	assert.Contains(t, err.Error(), "does not match regexp")

	_, _, err = ParseRegistryLocator("foo@not-a-version")
	require.ErrorIs(t, err, models.ErrInvalidVersion)
	assert.Contains(t, err.Error(), "not valid Semver format")

	_, _, err = ParseRegistryLocator("a@b@c")
	require.ErrorIs(t, err, models.ErrInvalidPackage)

	_, _, err = ParseRegistryLocator("./uniswap-v3.spkg")
	require.Error(t, err)
}

func TestResolveFromRegistry(t *testing.T) {
	var hits atomic.Int32
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		paths = append(paths, r.URL.Path)
		_, _ = w.Write(testPackage())
	}))
	defer srv.Close()

	r := newResolver(t, srv.URL)
	ctx := context.Background()

	pkg, err := r.Resolve(ctx, "foo@v1.2.3")
	require.NoError(t, err)
	require.Len(t, pkg.Modules, 1)
	assert.Equal(t, "map_pools_created", pkg.Modules[0].Name)

	// pinned versions are memoised
	_, err = r.Resolve(ctx, "foo@v1.2.3")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	// latest is always re-read
	_, err = r.Resolve(ctx, "foo")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "foo@latest")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())

	assert.Equal(t, []string{"/v1/packages/foo/v1.2.3", "/v1/packages/foo/latest", "/v1/packages/foo/latest"}, paths)
}

func TestResolveFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pkgs/uniswap-v3.spkg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(testPackage())
	}))
	defer srv.Close()

	r := newResolver(t, "http://registry.invalid")

	pkg, err := r.Resolve(context.Background(), srv.URL+"/pkgs/uniswap-v3.spkg")
	require.NoError(t, err)
	assert.Equal(t, uint64(12369621), pkg.Modules[0].InitialBlock)

	_, err = r.Resolve(context.Background(), srv.URL+"/pkgs/missing.spkg")
	require.Error(t, err)
	assert.Equal(t, models.ErrorTypeResolution, models.ErrorTypeOf(err))
}

func TestResolveFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uniswap-v3.spkg")
	require.NoError(t, os.WriteFile(path, testPackage(), 0o600))

	r := newResolver(t, "http://registry.invalid")

	pkg, err := r.Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, pkg.RawModules)

	_, err = r.Resolve(context.Background(), filepath.Join(dir, "missing.spkg"))
	require.ErrorContains(t, err, "read package from file")
}

func TestResolveRejectsUndecodablePackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	r := newResolver(t, srv.URL)

	_, err := r.Resolve(context.Background(), "foo@v1.0.0")
	require.ErrorContains(t, err, "decode package")
	assert.Equal(t, models.ErrorTypeResolution, models.ErrorTypeOf(err))
}
