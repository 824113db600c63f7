package datetime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

// Registry caches one Recognizer per requested locale. Recognizers are built
// on first use and shared read-only afterwards.
type Registry struct {
	source rules.Source
	opts   []Option
	logger *zap.Logger

	mu          sync.RWMutex
	recognizers map[string]*Recognizer
	generation  atomic.Uint64
	group       singleflight.Group
}

// NewRegistry creates an empty registry reading rule documents from source
func NewRegistry(source rules.Source, logger *zap.Logger, opts ...Option) *Registry {
	return &Registry{
		source:      source,
		opts:        opts,
		logger:      logger,
		recognizers: make(map[string]*Recognizer),
	}
}

// Recognizer returns the recognizer for locale, building it if needed
func (r *Registry) Recognizer(ctx context.Context, locale string) *Recognizer {
	r.mu.RLock()
	rec, ok := r.recognizers[locale]
	r.mu.RUnlock()
	if ok {
		return rec
	}

	gen := r.generation.Load()
	v, _, _ := r.group.Do(fmt.Sprintf("%d/%s", gen, locale), func() (interface{}, error) {
		r.mu.RLock()
		rec, ok := r.recognizers[locale]
		r.mu.RUnlock()
		if ok {
			return rec, nil
		}

		// Shared builds outlive the request that started them
		repo := NewRepository(context.WithoutCancel(ctx), r.source, locale, r.logger, r.opts...)
		rec = NewRecognizer(repo, r.logger)

		r.mu.Lock()
		if r.generation.Load() == gen {
			r.recognizers[locale] = rec
		}
		r.mu.Unlock()
		return rec, nil
	})
	return v.(*Recognizer)
}

// Detect returns the date and time expressions of text
func (r *Registry) Detect(ctx context.Context, locale, text string) []Match {
	if text == "" {
		return []Match{}
	}
	return r.Recognizer(ctx, locale).Recognize(text)
}

// DetectOffsets returns Detect's spans flattened as
// [count, begin0, end0, begin1, end1, ...]
func (r *Registry) DetectOffsets(ctx context.Context, locale, text string) []int32 {
	return Offsets(r.Detect(ctx, locale, text))
}

// Reset drops every cached recognizer and starts a new generation. Builds
// already in flight finish but are not cached.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.recognizers = make(map[string]*Recognizer)
	gen := r.generation.Add(1)
	r.mu.Unlock()

	r.logger.Info("Recognizer cache reset", zap.Uint64("generation", gen))
}

// Generation identifies the current rule set version
func (r *Registry) Generation() uint64 {
	return r.generation.Load()
}

// Locales returns the requested locales with a cached recognizer
func (r *Registry) Locales() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locales := make([]string, 0, len(r.recognizers))
	for locale := range r.recognizers {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	return locales
}
