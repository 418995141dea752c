// Package ratelimit bounds calls to a shared external service with sliding windows.
package ratelimit

import (
	"crypto/md5" //nolint:gosec // key hashing only
	"encoding/hex"
	"fmt"
	"time"
)

// Default single-window settings.
const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
	DefaultKey    = "gemini_api"
	keyPrefix     = "pitchjudge:ratelimit"
)

// Window is one sliding window: at most Limit admissions within Size.
type Window struct {
	Name  string
	Size  time.Duration
	Limit int
}

// DefaultWindows is the single 10-per-minute window.
func DefaultWindows() []Window {
	return []Window{{Name: "minute", Size: DefaultWindow, Limit: DefaultLimit}}
}

// TieredWindows is the per-minute, per-hour and per-day variant.
func TieredWindows() []Window {
	return []Window{
		{Name: "minute", Size: time.Minute, Limit: 10},
		{Name: "hour", Size: time.Hour, Limit: 100},
		{Name: "day", Size: 24 * time.Hour, Limit: 1000},
	}
}

func (w Window) validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: window name is empty", ErrInvalidWindow)
	}
	if w.Size <= 0 || w.Limit <= 0 {
		return fmt.Errorf("%w: %s needs positive size and limit", ErrInvalidWindow, w.Name)
	}
	return nil
}

// storageKey derives the shared-store key for one window of a logical key.
// All windows of one logical key share a hash tag so they land in one slot.
func storageKey(key string, w Window) string {
	sum := md5.Sum([]byte(key)) //nolint:gosec // key hashing only
	return fmt.Sprintf("%s:{%s}:%s", keyPrefix, hex.EncodeToString(sum[:]), w.Name)
}
