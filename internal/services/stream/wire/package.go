package wire

import (
	"errors"
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"

	"google.golang.org/protobuf/encoding/protowire"
)

// sf.substreams.v1.Package field numbers
const (
	packageVersion protowire.Number = 5
	packageModules protowire.Number = 6

	modulesModules protowire.Number = 1

	moduleName         protowire.Number = 1
	moduleOutput       protowire.Number = 7
	moduleInitialBlock protowire.Number = 8

	outputType protowire.Number = 1
)

// ErrNoModules is returned for packages that do not declare a modules message
var ErrNoModules = errors.New("package declares no modules")

// DecodePackage decodes an encoded sf.substreams.v1.Package
func DecodePackage(b []byte) (*models.Package, error) {
	pkg := &models.Package{}
	var sawModules bool

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case packageVersion:
			v, n, err := varintValue(typ, b)
			pkg.Version = v
			return n, err
		case packageModules:
			raw, n, err := bytesValue(typ, b)
			if err != nil {
				return 0, err
			}
			sawModules = true
			// Repeated occurrences of an embedded message merge
			pkg.RawModules = append(pkg.RawModules, raw...)
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode package: %w", err)
	}
	if !sawModules {
		return nil, ErrNoModules
	}

	modules, err := decodeModules(pkg.RawModules)
	if err != nil {
		return nil, fmt.Errorf("decode package modules: %w", err)
	}
	pkg.Modules = modules

	seen := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("decode package: duplicate module name '%s'", m.Name)
		}
		seen[m.Name] = struct{}{}
	}

	return pkg, nil
}

func decodeModules(b []byte) ([]models.Module, error) {
	var modules []models.Module
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != modulesModules {
			return 0, nil
		}
		raw, n, err := bytesValue(typ, b)
		if err != nil {
			return 0, err
		}
		m, err := decodeModule(raw)
		if err != nil {
			return 0, err
		}
		modules = append(modules, m)
		return n, nil
	})
	return modules, err
}

func decodeModule(b []byte) (models.Module, error) {
	var m models.Module
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case moduleName:
			s, n, err := stringValue(typ, b)
			m.Name = s
			return n, err
		case moduleInitialBlock:
			v, n, err := varintValue(typ, b)
			m.InitialBlock = v
			return n, err
		case moduleOutput:
			raw, n, err := bytesValue(typ, b)
			if err != nil {
				return 0, err
			}
			err = walk(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num != outputType {
					return 0, nil
				}
				s, n, err := stringValue(typ, b)
				m.OutputType = s
				return n, err
			})
			return n, err
		}
		return 0, nil
	})
	return m, err
}

// EncodePackage encodes pkg. RawModules is used verbatim when present so a
// decoded package round-trips without losing fields this bridge ignores.
func EncodePackage(pkg *models.Package) []byte {
	modules := pkg.RawModules
	if modules == nil {
		modules = EncodeModules(pkg.Modules)
	}

	var b []byte
	b = appendVarint(b, packageVersion, pkg.Version)
	b = protowire.AppendTag(b, packageModules, protowire.BytesType)
	b = protowire.AppendBytes(b, modules)
	return b
}

// EncodeModules encodes a sf.substreams.v1.Modules message from module metadata
func EncodeModules(modules []models.Module) []byte {
	var b []byte
	for _, m := range modules {
		var mb []byte
		mb = appendString(mb, moduleName, m.Name)
		if m.OutputType != "" {
			mb = protowire.AppendTag(mb, moduleOutput, protowire.BytesType)
			mb = protowire.AppendBytes(mb, appendString(nil, outputType, m.OutputType))
		}
		mb = appendVarint(mb, moduleInitialBlock, m.InitialBlock)

		b = protowire.AppendTag(b, modulesModules, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	return b
}
