// Package cache stores fetched candle series on disk, keyed by symbol and
// timeframe, with a freshness TTL checked on read.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robopilot/robopilot/internal/market"
)

type payload struct {
	WrittenAt time.Time       `json:"written_at"`
	Candles   []market.Candle `json:"candles"`
}

type Store struct {
	dir string
	ttl time.Duration
}

func New(dir string, ttl time.Duration) *Store {
	return &Store{dir: dir, ttl: ttl}
}

// Load returns the cached series if the entry exists and was written within
// the TTL. A corrupt or stale entry is treated as a miss.
func (s *Store) Load(symbol string, tf market.Timeframe) ([]market.Candle, bool) {
	data, err := os.ReadFile(s.path(symbol, tf))
	if err != nil {
		return nil, false
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	if time.Since(p.WrittenAt) > s.ttl {
		return nil, false
	}
	return p.Candles, true
}

// Save overwrites the entry wholesale. The payload is written to a temp file
// and renamed into place so a concurrent reader never sees a partial write.
func (s *Store) Save(symbol string, tf market.Timeframe, candles []market.Candle) error {
	path := s.path(symbol, tf)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.Marshal(payload{WrittenAt: time.Now().UTC(), Candles: candles})
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish cache entry: %w", err)
	}
	return nil
}

func (s *Store) path(symbol string, tf market.Timeframe) string {
	name := strings.ToUpper(strings.ReplaceAll(symbol, "=", "_"))
	return filepath.Join(s.dir, string(tf), name+".json")
}
