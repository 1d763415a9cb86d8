package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

type MemoryConfig struct {
	NumCounters int64
	MaxCost     int64
}

// Memory is an in-process ristretto cache. It cannot enumerate keys, so it
// does not implement PrefixClearer.
type Memory struct {
	c *ristretto.Cache[string, []byte]
}

func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 100_000
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Get(key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) error {
	m.c.SetWithTTL(key, value, int64(len(value))+1, ttl)
	// sets are buffered; make them visible to the next Get
	m.c.Wait()
	return nil
}

func (m *Memory) Delete(key string) error {
	m.c.Del(key)
	return nil
}

func (m *Memory) Clear() error {
	m.c.Clear()
	return nil
}

func (m *Memory) Close() error {
	m.c.Close()
	return nil
}
