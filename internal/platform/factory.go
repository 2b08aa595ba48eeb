package platform

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/aretw0/todosync/pkg/backends/intx"
	"github.com/aretw0/todosync/pkg/backends/manifest"
	"github.com/aretw0/todosync/pkg/backends/sqlite"
	"github.com/aretw0/todosync/pkg/backends/todotxt"
	"github.com/aretw0/todosync/pkg/core"
)

// BackendType identifies a backend implementation.
type BackendType string

const (
	TypeTodoTxt  BackendType = "todotxt"
	TypeIntx     BackendType = "intx"
	TypeManifest BackendType = "manifest"
	TypeSQLite   BackendType = "sqlite"
)

// Type names accepted from older configuration files.
var aliases = map[string]BackendType{
	"todotxtsource": TypeTodoTxt,
	"kololasource":  TypeIntx,
}

type constructor func(options map[string]any, logger *slog.Logger) (core.Backend, error)

var factories = map[BackendType]constructor{
	TypeTodoTxt: func(raw map[string]any, logger *slog.Logger) (core.Backend, error) {
		var opts todotxt.Options
		if err := decode(raw, &opts); err != nil {
			return nil, err
		}
		return todotxt.New(opts, logger)
	},
	TypeIntx: func(raw map[string]any, logger *slog.Logger) (core.Backend, error) {
		var opts intx.Options
		if err := decode(raw, &opts); err != nil {
			return nil, err
		}
		return intx.New(opts, logger)
	},
	TypeManifest: func(raw map[string]any, logger *slog.Logger) (core.Backend, error) {
		var opts manifest.Options
		if err := decode(raw, &opts); err != nil {
			return nil, err
		}
		return manifest.New(opts, logger)
	},
	TypeSQLite: func(raw map[string]any, logger *slog.Logger) (core.Backend, error) {
		var opts sqlite.Options
		if err := decode(raw, &opts); err != nil {
			return nil, err
		}
		return sqlite.New(opts, logger)
	},
}

// BackendTypes lists the registered types, sorted.
func BackendTypes() []BackendType {
	out := make([]BackendType, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// ParseBackendType resolves a type name or alias, case-insensitively.
func ParseBackendType(name string) (BackendType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if t, ok := aliases[key]; ok {
		return t, nil
	}
	if _, ok := factories[BackendType(key)]; ok {
		return BackendType(key), nil
	}
	return "", fmt.Errorf("%w: type %q", core.ErrUnknownBackend, name)
}

// NewBackend builds the backend declared by s.
func NewBackend(s SourceConfig, logger *slog.Logger) (core.Backend, error) {
	t, err := ParseBackendType(s.Type)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b, err := factories[t](s.Options, logger.With("source", s.ID))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.ID, err)
	}
	return b, nil
}

// decode maps raw options onto a typed struct. Unknown keys are an error so
// typos surface at startup.
func decode(raw map[string]any, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := d.Decode(raw); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}
