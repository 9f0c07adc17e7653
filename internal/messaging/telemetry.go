package messaging

import (
	"strconv"
	"strings"
	"sync"
)

// TelemetryCache holds the latest host telemetry as raw strings. Values are
// decimal numbers, 0/1 booleans, comma-separated arrays or plain text.
type TelemetryCache struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewTelemetryCache() *TelemetryCache {
	return &TelemetryCache{values: make(map[string]string)}
}

// Replace swaps in a full telemetry snapshot.
func (t *TelemetryCache) Replace(values map[string]string) {
	next := make(map[string]string, len(values))
	for k, v := range values {
		next[k] = v
	}
	t.mu.Lock()
	t.values = next
	t.mu.Unlock()
}

// Set updates a single identifier.
func (t *TelemetryCache) Set(id, value string) {
	t.mu.Lock()
	t.values[id] = value
	t.mu.Unlock()
}

func (t *TelemetryCache) raw(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[id]
	return v, ok
}

func (t *TelemetryCache) HasSensor(id string) bool {
	_, ok := t.raw(id)
	return ok
}

// Float reads a number; an array reads as its first element.
func (t *TelemetryCache) Float(id string) float64 {
	return t.FloatAt(id, 0)
}

func (t *TelemetryCache) FloatAt(id string, index int) float64 {
	v, ok := t.raw(id)
	if !ok || index < 0 {
		return 0
	}
	parts := strings.Split(v, ",")
	if index >= len(parts) {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(parts[index]), 64)
	if err != nil {
		return 0
	}
	return f
}

// Bool treats any non-zero number or "true" as true.
func (t *TelemetryCache) Bool(id string) bool {
	v, ok := t.raw(id)
	if !ok {
		return false
	}
	v = strings.TrimSpace(v)
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && f != 0
}

func (t *TelemetryCache) Text(id string) string {
	v, _ := t.raw(id)
	return v
}
