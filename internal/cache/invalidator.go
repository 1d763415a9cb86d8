// Package cache provides cache backends and the site-wide invalidation facade.
package cache

import (
	"fmt"
	"log/slog"

	"wbpmisueso/internal/metrics"
)

// Invalidator is the single entry point for dropping cached reads after a
// mutation. Backend errors are logged and never returned.
type Invalidator struct {
	backend Backend
	logger  *slog.Logger
}

func NewInvalidator(backend Backend, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{backend: backend, logger: logger.With("component", "cache")}
}

func (i *Invalidator) ClearAll() {
	if i == nil || i.backend == nil {
		return
	}
	i.clearAll("all", "")
}

// ClearPrefix drops keys starting with prefix. When the backend cannot scan
// by prefix the whole cache is flushed instead.
func (i *Invalidator) ClearPrefix(prefix string) {
	if i == nil || i.backend == nil {
		return
	}
	i.clearPrefix("prefix", prefix)
}

// InvalidateModel drops cached reads derived from a model. Keys are scoped
// per model, so instanceID only appears in the log.
func (i *Invalidator) InvalidateModel(model string, instanceID ...uint) {
	if i == nil || i.backend == nil {
		return
	}
	attrs := []any{"model", model}
	if len(instanceID) > 0 {
		attrs = append(attrs, "instance_id", instanceID[0])
	}
	i.logger.Info("invalidating model cache", attrs...)
	i.clearPrefix("model", ModelPrefix(model))
}

func (i *Invalidator) clearPrefix(scope, prefix string) {
	pc, ok := i.backend.(PrefixClearer)
	if !ok {
		i.clearAll(scope, prefix)
		return
	}
	if err := safely(func() error { return pc.ClearPrefix(prefix) }); err != nil {
		metrics.CacheInvalidations.WithLabelValues(scope, "error").Inc()
		i.logger.Error("cache prefix clear failed", "backend", i.backend.Name(), "prefix", prefix, "error", err)
		return
	}
	metrics.CacheInvalidations.WithLabelValues(scope, "prefix").Inc()
	i.logger.Info("cache prefix cleared", "backend", i.backend.Name(), "prefix", prefix)
}

func (i *Invalidator) clearAll(scope, attemptedPrefix string) {
	if err := safely(i.backend.Clear); err != nil {
		metrics.CacheInvalidations.WithLabelValues(scope, "error").Inc()
		i.logger.Error("cache clear failed", "backend", i.backend.Name(), "attempted_prefix", attemptedPrefix, "error", err)
		return
	}
	metrics.CacheInvalidations.WithLabelValues(scope, "all").Inc()
	if attemptedPrefix != "" {
		i.logger.Info("cache cleared (backend has no prefix scan)", "backend", i.backend.Name(), "attempted_prefix", attemptedPrefix)
		return
	}
	i.logger.Info("cache cleared", "backend", i.backend.Name())
}

// safely turns a backend panic into an error so invalidation stays best-effort.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache backend panic: %v", r)
		}
	}()
	return fn()
}
