package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// UnsupportedFormatError is returned for extensions with no registered strategy.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return "unsupported file type: no extension"
	}
	return fmt.Sprintf("unsupported file type: %s", e.Extension)
}

// ExtractionError wraps any engine failure behind the format name.
type ExtractionError struct {
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s text: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Engine turns one file into plain text.
type Engine interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// EngineFunc adapts a function into an Engine.
type EngineFunc struct {
	Label string
	Fn    func(ctx context.Context, path string) (string, error)
}

func (e EngineFunc) Name() string { return e.Label }

func (e EngineFunc) Extract(ctx context.Context, path string) (string, error) {
	return e.Fn(ctx, path)
}

// Strategy is an ordered chain of engines for one format family.
// The first engine that returns without error wins.
type Strategy struct {
	Format  string
	Engines []Engine
}

// Observer is notified once per engine attempt.
type Observer func(format, engine string, err error)

// Registry maps lower-cased extensions to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	observe    Observer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Observe installs a callback for engine attempts.
func (r *Registry) Observe(fn Observer) {
	r.mu.Lock()
	r.observe = fn
	r.mu.Unlock()
}

// Register binds a strategy to one or more extensions, replacing any previous binding.
func (r *Registry) Register(strategy Strategy, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.strategies[normalizeExt(ext)] = strategy
	}
}

// Supports reports whether ext has a registered strategy.
func (r *Registry) Supports(ext string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[normalizeExt(ext)]
	return ok
}

// Extensions lists registered extensions.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for ext := range r.strategies {
		out = append(out, ext)
	}
	return out
}

// Extract dispatches on ext and returns the raw text, which may be blank.
func (r *Registry) Extract(ctx context.Context, path, ext string) (string, error) {
	ext = normalizeExt(ext)
	r.mu.RLock()
	strategy, ok := r.strategies[ext]
	observe := r.observe
	r.mu.RUnlock()
	if !ok {
		return "", &UnsupportedFormatError{Extension: ext}
	}
	if len(strategy.Engines) == 0 {
		return "", &ExtractionError{Format: strategy.Format, Err: errors.New("no engines configured")}
	}

	var errs []error
	for _, engine := range strategy.Engines {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		text, err := engine.Extract(ctx, path)
		if observe != nil {
			observe(strategy.Format, engine.Name(), err)
		}
		if err == nil {
			return text, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", engine.Name(), err))
	}
	return "", &ExtractionError{Format: strategy.Format, Err: errors.Join(errs...)}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
