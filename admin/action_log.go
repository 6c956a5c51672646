package admin

import (
	"context"
	"sync"
	"time"

	"chflow"
	"chflow/action"
)

// ActionLog 动作日志
// 内存中的环形动作日志，超过容量时丢弃最旧的记录。
type ActionLog struct {
	entries    []LoggedAction
	maxEntries int
	mu         sync.RWMutex
	nextID     int64
}

// LoggedAction 记录的动作
type LoggedAction struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	RequestID string    `json:"request_id"`
	Key       string    `json:"key,omitempty"`
	Category  string    `json:"category,omitempty"`
	Failed    bool      `json:"failed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActionFilter 动作筛选条件
type ActionFilter struct {
	Type      string
	RequestID string
	Key       string
	Limit     int
	Offset    int
}

func (f ActionFilter) match(e LoggedAction) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if f.Key != "" && e.Key != f.Key {
		return false
	}
	return true
}

// NewActionLog creates a log holding at most maxEntries actions (default 1000).
func NewActionLog(maxEntries int) *ActionLog {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &ActionLog{
		entries:    make([]LoggedAction, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Record appends a to the log.
func (l *ActionLog) Record(a action.Action) {
	entry := LoggedAction{
		Type:      string(a.Type),
		RequestID: a.RequestID,
		Failed:    a.Error,
		Timestamp: a.Timestamp,
	}

	// 提取围栏键
	switch p := a.Payload.(type) {
	case chflow.FenceKey:
		entry.Key = string(p)
	case chflow.Envelope:
		entry.Key = string(p.Key)
		entry.Category = string(p.Category)
		if p.Err != nil {
			entry.Error = p.Err.Error()
		}
	case chflow.MutationResult:
		entry.Key = string(p.Key)
		if p.Err != nil {
			entry.Error = p.Err.Error()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	entry.ID = l.nextID
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
}

// List returns matching actions, newest first.
func (l *ActionLog) List(filter ActionFilter) []LoggedAction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var filtered []LoggedAction
	for i := len(l.entries) - 1; i >= 0; i-- {
		if filter.match(l.entries[i]) {
			filtered = append(filtered, l.entries[i])
		}
	}

	if filter.Offset >= len(filtered) {
		return []LoggedAction{}
	}
	end := filter.Offset + filter.Limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[filter.Offset:end]
}

// Count returns the number of matching actions.
func (l *ActionLog) Count(filter ActionFilter) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, e := range l.entries {
		if filter.match(e) {
			n++
		}
	}
	return n
}

// Handler returns an action.Handler for Bus.SubscribeAll.
func (l *ActionLog) Handler() action.Handler {
	return func(_ context.Context, a action.Action) error {
		l.Record(a)
		return nil
	}
}

// Len 返回当前记录数
func (l *ActionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Types returns the distinct action types in the log.
func (l *ActionLog) Types() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	var types []string
	for _, e := range l.entries {
		if _, ok := seen[e.Type]; !ok {
			seen[e.Type] = struct{}{}
			types = append(types, e.Type)
		}
	}
	return types
}
