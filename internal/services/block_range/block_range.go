// Package block_range turns a range expression into absolute block coordinates.
//
// An expression has the shape [<start>][:<stop>]. Without a colon the whole
// expression is <stop>. Each side is empty, an absolute integer, or +N
// relative to the module's initial block (start) or to the resolved start
// (stop). An empty or "-" stop means unbounded.
package block_range

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Egham-7/substreams-bridge/internal/models"
)

// Resolve looks moduleName up in pkg and resolves expr against its initial block
func Resolve(pkg *models.Package, moduleName string, expr string) (models.BlockRange, error) {
	module, ok := pkg.FindModule(moduleName)
	if !ok {
		return models.BlockRange{}, models.NewValidationError(
			fmt.Sprintf("module '%s' not found in package", moduleName),
			models.ErrModuleNotFound,
		)
	}
	return ResolveExpr(module.InitialBlock, expr)
}

// ResolveExpr resolves expr against a module's declared initial block
func ResolveExpr(initialBlock uint64, expr string) (models.BlockRange, error) {
	prefix, suffix, found := strings.Cut(expr, ":")
	if !found {
		prefix, suffix = "", expr
	}

	start, err := resolveStart(initialBlock, prefix)
	if err != nil {
		return models.BlockRange{}, err
	}

	stop, err := resolveStop(start, suffix)
	if err != nil {
		return models.BlockRange{}, err
	}

	return models.BlockRange{Start: start, Stop: stop}, nil
}

func resolveStart(initialBlock uint64, token string) (int64, error) {
	switch {
	case token == "":
		return int64(initialBlock), nil
	case strings.HasPrefix(token, "+"):
		count, err := strconv.ParseUint(strings.TrimPrefix(token, "+"), 10, 64)
		if err != nil {
			return 0, invalidInteger("start", token, err)
		}
		return int64(initialBlock + count), nil
	default:
		start, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return 0, invalidInteger("start", token, err)
		}
		return start, nil
	}
}

func resolveStop(start int64, token string) (uint64, error) {
	switch {
	case token == "", token == "-":
		return 0, nil
	case strings.HasPrefix(token, "+"):
		count, err := strconv.ParseUint(strings.TrimPrefix(token, "+"), 10, 64)
		if err != nil {
			return 0, invalidInteger("stop", token, err)
		}
		return uint64(start) + count, nil
	default:
		stop, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return 0, invalidInteger("stop", token, err)
		}
		return stop, nil
	}
}

func invalidInteger(arg, token string, cause error) error {
	return models.NewValidationError(
		fmt.Sprintf("argument <%s> is not a valid integer: '%s'", arg, token),
		fmt.Errorf("%w: %w", models.ErrInvalidInteger, cause),
	)
}
