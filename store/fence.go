package store

import (
	"context"
	"sync"

	"chflow"
)

// FenceState records, per category, the key of the most recent INIT.
type FenceState interface {
	// Begin makes key the current fence of cat.
	Begin(ctx context.Context, cat chflow.Category, key chflow.FenceKey) error

	// Current returns the current fence of cat; ok is false when no request
	// was ever started in cat.
	Current(ctx context.Context, cat chflow.Category) (key chflow.FenceKey, ok bool, err error)
}

// IsCurrent reports whether key is the current fence of cat. A category
// that never saw an INIT has no current fence, so every DONE is stale.
func IsCurrent(ctx context.Context, fs FenceState, cat chflow.Category, key chflow.FenceKey) (bool, error) {
	current, ok, err := fs.Current(ctx, cat)
	if err != nil || !ok {
		return false, err
	}
	return current == key, nil
}

// MemoryFenceState is an in-process FenceState.
type MemoryFenceState struct {
	mu     sync.RWMutex
	fences map[chflow.Category]chflow.FenceKey
}

var _ FenceState = (*MemoryFenceState)(nil)

// NewMemoryFenceState creates an empty MemoryFenceState.
func NewMemoryFenceState() *MemoryFenceState {
	return &MemoryFenceState{
		fences: make(map[chflow.Category]chflow.FenceKey),
	}
}

// Begin implements FenceState.
func (m *MemoryFenceState) Begin(_ context.Context, cat chflow.Category, key chflow.FenceKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fences[cat] = key
	return nil
}

// Current implements FenceState.
func (m *MemoryFenceState) Current(_ context.Context, cat chflow.Category) (chflow.FenceKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.fences[cat]
	return key, ok, nil
}
