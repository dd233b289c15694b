// Package package_resolver loads package definitions from the registry, from
// an http(s) URL or from a local file.
package package_resolver

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/wire"

	"github.com/coreos/go-semver/semver"
	fiberlog "github.com/gofiber/fiber/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const latestVersion = "latest"

var packageNameRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ParseRegistryLocator splits "<name>[@<version>]". An empty version and
// "latest" both resolve to "latest"; anything else must be semver, optionally
// prefixed with "v".
func ParseRegistryLocator(input string) (name, version string, err error) {
	parts := strings.Split(input, "@")
	if len(parts) > 2 {
		return "", "", models.NewValidationError(
			fmt.Sprintf("package name: %s does not follow the convention of <package>@<version>", input),
			models.ErrInvalidPackage,
		)
	}

	name = parts[0]
	if !packageNameRegexp.MatchString(name) {
		return "", "", models.NewValidationError(
			fmt.Sprintf("package name %s does not match regexp %s", name, packageNameRegexp),
			models.ErrInvalidPackage,
		)
	}

	if len(parts) == 1 || parts[1] == "" || parts[1] == latestVersion {
		return name, latestVersion, nil
	}

	version = parts[1]
	if _, err := semver.NewVersion(strings.TrimPrefix(version, "v")); err != nil {
		return "", "", models.NewValidationError(
			fmt.Sprintf("version '%s'", version),
			fmt.Errorf("%w: %w", models.ErrInvalidVersion, err),
		)
	}
	return name, version, nil
}

// RegistryURL returns the registry download URL for a package version
func RegistryURL(registry, name, version string) string {
	return fmt.Sprintf("%s/v1/packages/%s/%s", strings.TrimRight(registry, "/"), name, version)
}

// Resolver fetches and decodes packages. Packages returned from the cache are
// shared between callers and must be treated as read-only.
type Resolver struct {
	client   *services.Client
	registry string
	pinned   *lru.Cache[string, *models.Package]
	inflight singleflight.Group
}

// NewResolver creates a resolver against the configured registry
func NewResolver(client *services.Client, cfg models.RegistryConfig) (*Resolver, error) {
	registry := cfg.URL
	if registry == "" {
		registry = models.DefaultRegistryURL
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 64
	}

	cache, err := lru.New[string, *models.Package](size)
	if err != nil {
		return nil, fmt.Errorf("create package cache: %w", err)
	}

	return &Resolver{
		client:   client,
		registry: strings.TrimRight(registry, "/"),
		pinned:   cache,
	}, nil
}

// Resolve loads the package designated by locator. Registry names win over
// URLs, URLs over local paths.
func (r *Resolver) Resolve(ctx context.Context, locator string) (*models.Package, error) {
	source := locator
	pinned := false

	name, version, err := ParseRegistryLocator(locator)
	if err == nil {
		source = RegistryURL(r.registry, name, version)
		pinned = version != latestVersion
	} else {
		fiberlog.Debugf("Package locator %q is not a registry name, trying URL or file: %v", locator, err)
	}

	if pinned {
		if pkg, ok := r.pinned.Get(source); ok {
			return pkg, nil
		}
	}

	v, err, _ := r.inflight.Do(source, func() (any, error) {
		return r.load(ctx, source)
	})
	if err != nil {
		return nil, models.NewResolutionError(locator, err)
	}

	pkg := v.(*models.Package)
	if pinned {
		r.pinned.Add(source, pkg)
	}
	return pkg, nil
}

func (r *Resolver) load(ctx context.Context, source string) (*models.Package, error) {
	var (
		content []byte
		err     error
	)

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		fiberlog.Debugf("Fetching package from %s", source)
		err = r.client.Get(ctx, source, &content, &services.RequestOptions{
			ResponseType: "binary",
			Headers:      map[string]string{"Accept": "application/octet-stream"},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch package from '%s': %w", source, err)
		}
	} else {
		content, err = os.ReadFile(source) // #nosec G304 - caller chooses the package path
		if err != nil {
			return nil, fmt.Errorf("read package from file '%s': %w", source, err)
		}
	}

	pkg, err := wire.DecodePackage(content)
	if err != nil {
		return nil, fmt.Errorf("decode package: %w", err)
	}
	return pkg, nil
}
