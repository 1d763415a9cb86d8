package cache

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Backend is the minimal contract the application needs from a cache.
// Values are opaque bytes; callers own the encoding.
type Backend interface {
	Name() string
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
	Close() error
}

// PrefixClearer is implemented by backends that can drop keys by prefix.
type PrefixClearer interface {
	ClearPrefix(prefix string) error
}

type Options struct {
	Backend string // "memory" or "badger"
	Dir     string // badger directory; empty keeps badger in memory
	Logger  *slog.Logger
}

func New(opts Options) (Backend, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(MemoryConfig{})
	case "badger":
		return NewBadger(BadgerConfig{Path: opts.Dir, InMemory: opts.Dir == "", Logger: opts.Logger})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// Key joins parts with ':' as in "collegebudget:3:2025".
func Key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ":")
}

// ModelPrefix is the prefix under which all keys of a model live.
func ModelPrefix(model string) string {
	return model + ":"
}
