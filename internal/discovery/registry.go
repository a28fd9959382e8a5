package discovery

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kar10s/airtwitch/internal/domain"
)

// Registry is the append-ordered, deduplicated set of discovered receivers.
// The first record seen for a key is kept; later records for the same key
// are dropped.
type Registry struct {
	mu      sync.RWMutex
	records []domain.DeviceRecord
	keys    map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		keys: map[string]struct{}{},
	}
}

// OnDeviceResolved appends rec unless its key is already known. It reports
// whether the record was added.
func (r *Registry) OnDeviceResolved(rec domain.DeviceRecord) bool {
	if strings.TrimSpace(rec.Key) == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[rec.Key]; ok {
		return false
	}
	r.keys[rec.Key] = struct{}{}
	r.records = append(r.records, rec)
	return true
}

func (r *Registry) List() []domain.DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.DeviceRecord{}, r.records...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *Registry) Get(index int) (domain.DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.records) {
		return domain.DeviceRecord{}, &domain.Error{
			Kind: domain.ErrNotFound,
			Op:   "device lookup",
			Err:  fmt.Errorf("no device with index %d (have %d)", index, len(r.records)),
		}
	}
	return r.records[index], nil
}

// Find resolves a device by key, exact name, or case-insensitive name.
func (r *Registry) Find(target string) (domain.DeviceRecord, error) {
	target = strings.TrimSpace(target)
	devices := r.List()

	for _, d := range devices {
		if d.Key == strings.ToLower(target) {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.Name == target {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, target) || normalizeDeviceTarget(d.Name) == normalizeDeviceTarget(target) {
			return d, nil
		}
	}
	return domain.DeviceRecord{}, &domain.Error{
		Kind: domain.ErrNotFound,
		Op:   "device lookup",
		Err:  fmt.Errorf("device not found: %s", target),
	}
}

func normalizeDeviceTarget(v string) string {
	normalized := strings.ToLower(strings.TrimSpace(v))
	if idx := strings.LastIndex(normalized, " ("); idx > 0 && strings.HasSuffix(normalized, ")") {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	return normalized
}
