// Package store is the consuming side of the action layer. It reduces
// dispatched actions into state and enforces fencing: a DONE whose key is not
// the current fence of its category is discarded.
package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"chflow"
	"chflow/action"
	"chflow/filterpanel"
	"chflow/metrics"
)

var initCategories = map[action.Type]chflow.Category{
	action.GetDetailsInit:       chflow.CategoryDetails,
	action.GetSubmissionsInit:   chflow.CategorySubmissions,
	action.FetchResultsInit:     chflow.CategoryResults,
	action.FetchCheckpointsInit: chflow.CategoryCheckpoints,
}

var doneCategories = map[action.Type]chflow.Category{
	action.GetDetailsDone:       chflow.CategoryDetails,
	action.GetSubmissionsDone:   chflow.CategorySubmissions,
	action.FetchResultsDone:     chflow.CategoryResults,
	action.FetchCheckpointsDone: chflow.CategoryCheckpoints,
}

// Slot is the state of one fetch category.
//
// Fences compare keys only, so a late DONE from an earlier request for the same
// subject is still applied. RequestID and ResolvedBy tell the two apart.
type Slot struct {
	Key        chflow.FenceKey // key of the latest INIT
	RequestID  string          // request id of the latest INIT
	ResolvedBy string          // request id of the DONE that filled Data or Err
	Loading    bool
	Data       any
	Err        error
	UpdatedAt  time.Time
}

// MutationState is the state of one mutation kind.
type MutationState struct {
	Key      chflow.FenceKey
	Pending  bool
	Done     bool
	Err      error
	Response any
}

// State is a snapshot of everything the store holds.
type State struct {
	Slots              map[chflow.Category]Slot
	Mutations          map[chflow.MutationKind]MutationState
	UploadProgress     float64
	CheckpointFeedback map[int64]bool
	FilterPanel        filterpanel.State
	// Stale counts discarded DONE actions per category.
	Stale map[chflow.Category]int64
}

func (s State) clone() State {
	c := State{
		Slots:              make(map[chflow.Category]Slot, len(s.Slots)),
		Mutations:          make(map[chflow.MutationKind]MutationState, len(s.Mutations)),
		UploadProgress:     s.UploadProgress,
		CheckpointFeedback: make(map[int64]bool, len(s.CheckpointFeedback)),
		FilterPanel:        s.FilterPanel.Clone(),
		Stale:              make(map[chflow.Category]int64, len(s.Stale)),
	}
	for k, v := range s.Slots {
		c.Slots[k] = v
	}
	for k, v := range s.Mutations {
		c.Mutations[k] = v
	}
	for k, v := range s.CheckpointFeedback {
		c.CheckpointFeedback[k] = v
	}
	for k, v := range s.Stale {
		c.Stale[k] = v
	}
	return c
}

// Logger 日志接口
type Logger interface {
	Printf(format string, v ...any)
}

type defaultLogger struct{}

func (defaultLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// Store 动作归约器
type Store struct {
	mu      sync.Mutex
	fences  FenceState
	state   State
	metrics metrics.Metrics
	logger  Logger
}

// Option configures a Store.
type Option func(*Store)

// WithFenceState sets where fences are kept. Defaults to memory.
func WithFenceState(fs FenceState) Option {
	return func(s *Store) {
		s.fences = fs
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		state: State{
			Slots:              make(map[chflow.Category]Slot),
			Mutations:          make(map[chflow.MutationKind]MutationState),
			CheckpointFeedback: make(map[int64]bool),
			FilterPanel:        filterpanel.DefaultState(),
			Stale:              make(map[chflow.Category]int64),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fences == nil {
		s.fences = NewMemoryFenceState()
	}
	if s.metrics == nil {
		s.metrics = &metrics.NoopMetrics{}
	}
	if s.logger == nil {
		s.logger = defaultLogger{}
	}
	return s
}

// Attach subscribes the store to every action on bus.
func (s *Store) Attach(bus action.Bus) error {
	return bus.SubscribeAll(s.Handle)
}

// Fences returns the fence state the store compares against.
func (s *Store) Fences() FenceState {
	return s.fences
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Slot returns the state of one category.
func (s *Store) Slot(cat chflow.Category) Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Slots[cat]
}

// Handle reduces a into the store. It is an action.Handler.
func (s *Store) Handle(ctx context.Context, a action.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cat, ok := initCategories[a.Type]; ok {
		return s.begin(ctx, cat, a)
	}
	if cat, ok := doneCategories[a.Type]; ok {
		return s.resolve(ctx, cat, a)
	}

	switch a.Type {
	case action.RegisterInit:
		s.mutationInit(chflow.MutationRegister, a)
	case action.UnregisterInit:
		s.mutationInit(chflow.MutationUnregister, a)
	case action.SubmitInit:
		s.mutationInit(chflow.MutationSubmit, a)
		s.state.UploadProgress = 0
	case action.RegisterDone, action.UnregisterDone, action.SubmitDone:
		s.mutationDone(a)
	case action.SubmitReset:
		delete(s.state.Mutations, chflow.MutationSubmit)
		s.state.UploadProgress = 0
	case action.UploadProgress:
		if pct, ok := a.Payload.(float64); ok {
			s.state.UploadProgress = pct
		}
	case action.ToggleCheckpointFeedback:
		if t, ok := a.Payload.(chflow.CheckpointToggle); ok {
			s.state.CheckpointFeedback[t.SubmissionID] = t.Open
		}
	default:
		if filterpanel.IsPanelAction(a.Type) {
			s.state.FilterPanel = filterpanel.Reduce(s.state.FilterPanel, a)
		}
	}
	return nil
}

func (s *Store) begin(ctx context.Context, cat chflow.Category, a action.Action) error {
	key, ok := a.Payload.(chflow.FenceKey)
	if !ok {
		return fmt.Errorf("%s: payload %T is not a fence key", a.Type, a.Payload)
	}
	if err := s.fences.Begin(ctx, cat, key); err != nil {
		return fmt.Errorf("begin %s fence %q: %w", cat, key, err)
	}

	slot := s.state.Slots[cat]
	slot.Key = key
	slot.RequestID = a.RequestID
	slot.Loading = true
	s.state.Slots[cat] = slot
	return nil
}

func (s *Store) resolve(ctx context.Context, cat chflow.Category, a action.Action) error {
	env, ok := a.Payload.(chflow.Envelope)
	if !ok {
		return fmt.Errorf("%s: payload %T is not an envelope", a.Type, a.Payload)
	}

	current, err := IsCurrent(ctx, s.fences, cat, env.Key)
	if err != nil {
		return fmt.Errorf("read %s fence: %w", cat, err)
	}
	if !current {
		s.state.Stale[cat]++
		s.metrics.StaleDiscarded(string(cat))
		s.logger.Printf("[store] discarded stale %s result for key %q (request %s)", cat, env.Key, a.RequestID)
		return nil
	}

	slot := s.state.Slots[cat]
	slot.Key = env.Key
	slot.ResolvedBy = a.RequestID
	slot.Loading = false
	slot.Data = env.Data
	slot.Err = env.Err
	slot.UpdatedAt = a.Timestamp
	s.state.Slots[cat] = slot

	if cat == chflow.CategoryCheckpoints {
		s.state.CheckpointFeedback = make(map[int64]bool)
	}
	return nil
}

func (s *Store) mutationInit(kind chflow.MutationKind, a action.Action) {
	key, _ := a.Payload.(chflow.FenceKey)
	s.state.Mutations[kind] = MutationState{Key: key, Pending: true}
}

func (s *Store) mutationDone(a action.Action) {
	res, ok := a.Payload.(chflow.MutationResult)
	if !ok {
		return
	}
	s.state.Mutations[res.Kind] = MutationState{
		Key:      res.Key,
		Done:     true,
		Err:      res.Err,
		Response: res.Data,
	}
}
