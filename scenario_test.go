package chflow_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"chflow"
	"chflow/action"
	"chflow/store"
)

// ============================================================================
// Gated Collaborators
// ============================================================================

// gatedService answers GetChallenges for an id only once its gate is opened.
type gatedService struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newGatedService() *gatedService {
	return &gatedService{gates: make(map[string]chan struct{})}
}

func (s *gatedService) gate(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[id]
	if !ok {
		g = make(chan struct{})
		s.gates[id] = g
	}
	return g
}

func (s *gatedService) open(id string) {
	close(s.gate(id))
}

func (s *gatedService) GetChallenges(ctx context.Context, _ chflow.Credentials, filter chflow.Filter) (*chflow.ChallengeList, error) {
	select {
	case <-s.gate(filter["id"]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	id, _ := strconv.ParseInt(filter["id"], 10, 64)
	return &chflow.ChallengeList{Challenges: []chflow.Challenge{{ID: id, Track: "develop"}}, TotalCount: 1}, nil
}

func (s *gatedService) GetUserChallenges(context.Context, chflow.Credentials, string, chflow.Filter) (*chflow.ChallengeList, error) {
	return &chflow.ChallengeList{}, nil
}

func (s *gatedService) Register(context.Context, chflow.Credentials, string) error   { return nil }
func (s *gatedService) Unregister(context.Context, chflow.Credentials, string) error { return nil }

func (s *gatedService) Submit(context.Context, chflow.Credentials, []byte, string, string, func(float64)) (chflow.SubmitResult, error) {
	return chflow.SubmitResult{}, nil
}

type staticAPI struct{}

func (staticAPI) Fetch(_ context.Context, _, path string) (*chflow.Response, error) {
	return &chflow.Response{StatusCode: 200, Body: []byte(`{"submissions":[{"submissionId":1}]}`)}, nil
}

type quietLogger struct{}

func (quietLogger) Printf(string, ...any) {}

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

type harness struct {
	service *gatedService
	store   *store.Store
	layer   *chflow.Layer
}

func newHarness(t fataler) *harness {
	t.Helper()
	h := &harness{
		service: newGatedService(),
		store:   store.New(store.WithLogger(quietLogger{})),
	}
	bus := action.NewMemoryBus(action.WithLogger(quietLogger{}))
	if err := h.store.Attach(bus); err != nil {
		t.Fatalf("attach: %v", err)
	}
	h.layer = chflow.NewLayer(
		chflow.WithService(h.service),
		chflow.WithAPIClient(staticAPI{}),
		chflow.WithDispatcher(bus),
		chflow.WithLogger(quietLogger{}),
	)
	return h
}

func challengeID(t fataler, slot store.Slot) int64 {
	t.Helper()
	d, ok := slot.Data.(*chflow.Details)
	if !ok || d.Challenge == nil {
		t.Fatalf("slot holds %T, not details", slot.Data)
	}
	return d.Challenge.ID
}

// ============================================================================
// Scenarios
// ============================================================================

func TestScenario_LateResponseIsDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.layer.GetDetails(ctx, 42, chflow.Credentials{})
	second := h.layer.GetDetails(ctx, 43, chflow.Credentials{})

	h.service.open("43")
	second.Wait()
	h.service.open("42")
	first.Wait()

	slot := h.store.Slot(chflow.CategoryDetails)
	if slot.Key != "43" || slot.Loading {
		t.Fatalf("expected settled slot for 43, got %+v", slot)
	}
	if id := challengeID(t, slot); id != 43 {
		t.Errorf("late result for 42 overwrote 43: %d", id)
	}
	if n := h.store.Snapshot().Stale[chflow.CategoryDetails]; n != 1 {
		t.Errorf("expected 1 stale result, got %d", n)
	}
}

func TestScenario_InOrderResponses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.layer.GetDetails(ctx, 42, chflow.Credentials{})
	second := h.layer.GetDetails(ctx, 43, chflow.Credentials{})

	h.service.open("42")
	first.Wait()
	h.service.open("43")
	second.Wait()

	slot := h.store.Slot(chflow.CategoryDetails)
	if id := challengeID(t, slot); id != 43 {
		t.Errorf("expected 43, got %d", id)
	}
	if n := h.store.Snapshot().Stale[chflow.CategoryDetails]; n != 1 {
		t.Errorf("expected the superseded result to be discarded, got %d", n)
	}
}

func TestScenario_RegisterAlongsideSubmissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.service.open("5")

	reg := h.layer.Register(ctx, 5, chflow.Credentials{TokenV3: ""})
	subs := h.layer.GetSubmissions(ctx, 5, chflow.Credentials{TokenV2: "v2"})

	if err := reg.Wait(); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Refresh().Wait()
	subs.Wait()
	h.layer.Wait()

	state := h.store.Snapshot()
	if m := state.Mutations[chflow.MutationRegister]; !m.Done || m.Err != nil || m.Key != "5" {
		t.Errorf("unexpected register state %+v", m)
	}
	details := state.Slots[chflow.CategoryDetails]
	if id := challengeID(t, details); id != 5 {
		t.Errorf("expected refreshed details for 5, got %d", id)
	}
	sub := state.Slots[chflow.CategorySubmissions]
	if rows, ok := sub.Data.([]chflow.Submission); !ok || len(rows) != 1 || sub.Key != "5" {
		t.Errorf("submissions slot disturbed by register: %+v", sub)
	}
	for cat, n := range state.Stale {
		if n != 0 {
			t.Errorf("unexpected stale %s results: %d", cat, n)
		}
	}
}

// ============================================================================
// Property Tests
// ============================================================================

func TestProperty_LatestRequestWins(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ids := rapid.SliceOfNDistinct(rapid.Int64Range(1, 10_000), 1, 6, rapid.ID[int64]).Draw(rt, "ids")
		order := rapid.Permutation(ids).Draw(rt, "order")

		h := newHarness(rt)
		ctx := context.Background()

		tasks := make(map[int64]*chflow.Task, len(ids))
		for _, id := range ids {
			tasks[id] = h.layer.GetDetails(ctx, id, chflow.Credentials{})
		}
		for _, id := range order {
			h.service.open(fmt.Sprint(id))
			tasks[id].Wait()
		}

		last := ids[len(ids)-1]
		slot := h.store.Slot(chflow.CategoryDetails)
		if slot.Key != chflow.Key(last) {
			rt.Fatalf("expected key %d, got %q", last, slot.Key)
		}
		if id := challengeID(rt, slot); id != last {
			rt.Fatalf("expected data for %d, got %d", last, id)
		}
		if n := h.store.Snapshot().Stale[chflow.CategoryDetails]; n != int64(len(ids)-1) {
			rt.Fatalf("expected %d stale results, got %d", len(ids)-1, n)
		}
	})
}
