package chflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chflow/action"
	"chflow/circuit"
)

// ============================================================================
// Mock Collaborators
// ============================================================================

type mockService struct {
	mu sync.Mutex

	challenges map[string]Challenge
	members    map[string]Challenge
	getErr     error
	memberErr  error
	mutateErr  error
	progress   []float64
	submitRes  SubmitResult

	// primaryWait, when set, runs inside GetChallenges before answering
	primaryWait func(ctx context.Context) error

	filters     []Filter
	handles     []string
	memberCalls int
	registered  []string
	unregisters []string
	submissions []string
	tracks      []string
}

func newMockService() *mockService {
	return &mockService{
		challenges: make(map[string]Challenge),
		members:    make(map[string]Challenge),
	}
}

func (m *mockService) GetChallenges(ctx context.Context, _ Credentials, filter Filter) (*ChallengeList, error) {
	m.mu.Lock()
	m.filters = append(m.filters, filter)
	wait := m.primaryWait
	m.mu.Unlock()

	if wait != nil {
		if err := wait(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.challenges[filter["id"]]
	if !ok {
		return &ChallengeList{}, nil
	}
	return &ChallengeList{Challenges: []Challenge{c}, TotalCount: 1}, nil
}

func (m *mockService) GetUserChallenges(_ context.Context, _ Credentials, handle string, filter Filter) (*ChallengeList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberCalls++
	m.handles = append(m.handles, handle)
	if m.memberErr != nil {
		return nil, m.memberErr
	}
	c, ok := m.members[filter["id"]]
	if !ok {
		return &ChallengeList{}, nil
	}
	return &ChallengeList{Challenges: []Challenge{c}, TotalCount: 1}, nil
}

func (m *mockService) Register(_ context.Context, _ Credentials, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, id)
	return m.mutateErr
}

func (m *mockService) Unregister(_ context.Context, _ Credentials, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregisters = append(m.unregisters, id)
	return m.mutateErr
}

func (m *mockService) Submit(_ context.Context, _ Credentials, _ []byte, id, track string, onProgress func(float64)) (SubmitResult, error) {
	m.mu.Lock()
	m.submissions = append(m.submissions, id)
	m.tracks = append(m.tracks, track)
	progress := append([]float64(nil), m.progress...)
	res, err := m.submitRes, m.mutateErr
	m.mu.Unlock()

	for _, p := range progress {
		onProgress(p)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *mockService) memberCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberCalls
}

type mockAPI struct {
	mu        sync.Mutex
	responses map[string]*Response
	errs      map[string]error
	paths     []string
	tokens    []string
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		responses: make(map[string]*Response),
		errs:      make(map[string]error),
	}
}

func (m *mockAPI) on(path string, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = &Response{StatusCode: status, Body: []byte(body)}
}

func (m *mockAPI) Fetch(_ context.Context, token, path string) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	m.tokens = append(m.tokens, token)
	if err, ok := m.errs[path]; ok {
		return nil, err
	}
	if resp, ok := m.responses[path]; ok {
		return resp, nil
	}
	return &Response{StatusCode: 404}, nil
}

func (m *mockAPI) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paths...)
}

type mockDecoder struct {
	handle string
	err    error
}

func (m mockDecoder) Handle(token string) (string, error) {
	if token == "" {
		return "", ErrNoCredentials
	}
	return m.handle, m.err
}

type recorder struct {
	mu      sync.Mutex
	actions []action.Action
}

func (r *recorder) Dispatch(_ context.Context, a action.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	return nil
}

func (r *recorder) all() []action.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]action.Action(nil), r.actions...)
}

func (r *recorder) types() []action.Type {
	var ts []action.Type
	for _, a := range r.all() {
		ts = append(ts, a.Type)
	}
	return ts
}

func (r *recorder) ofType(t action.Type) []action.Action {
	var out []action.Action
	for _, a := range r.all() {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

type mockLogger struct {
	mu   sync.Mutex
	logs []string
}

func (l *mockLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, fmt.Sprintf(format, v...))
}

type mockMetrics struct {
	mu        sync.Mutex
	started   map[string]int
	completed map[string]int
	failed    map[string][]string
	mutations map[string][]bool
	progress  []float64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		started:   make(map[string]int),
		completed: make(map[string]int),
		failed:    make(map[string][]string),
		mutations: make(map[string][]bool),
	}
}

func (m *mockMetrics) FetchStarted(c string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started[c]++
}

func (m *mockMetrics) FetchCompleted(c string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[c]++
}

func (m *mockMetrics) FetchFailed(c, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[c] = append(m.failed[c], reason)
}

func (m *mockMetrics) StaleDiscarded(string) {}

func (m *mockMetrics) MutationCompleted(kind string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations[kind] = append(m.mutations[kind], ok)
}

func (m *mockMetrics) UploadProgress(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, p)
}

func (m *mockMetrics) CircuitStateChanged(string, circuit.State) {}

// ============================================================================
// Fixture
// ============================================================================

type fixture struct {
	service *mockService
	api     *mockAPI
	bus     *recorder
	metrics *mockMetrics
	logger  *mockLogger
	layer   *Layer
}

var errBoom = errors.New("boom")

func newFixture(opts ...LayerOption) *fixture {
	f := &fixture{
		service: newMockService(),
		api:     newMockAPI(),
		bus:     &recorder{},
		metrics: newMockMetrics(),
		logger:  &mockLogger{},
	}
	base := []LayerOption{
		WithService(f.service),
		WithAPIClient(f.api),
		WithDecoder(mockDecoder{handle: "tourist"}),
		WithDispatcher(f.bus),
		WithMetrics(f.metrics),
		WithLogger(f.logger),
	}
	f.layer = NewLayer(append(base, opts...)...)
	return f
}

// challenge seeds a challenge and its v2 record.
func (f *fixture) challenge(id int64, track string) {
	key := fmt.Sprint(id)
	f.service.mu.Lock()
	f.service.challenges[key] = Challenge{ID: id, Name: "challenge " + key, Track: track}
	f.service.mu.Unlock()

	seg := track
	if seg == "" {
		seg = "develop"
	}
	f.api.on(fmt.Sprintf("/%s/challenges/%d", strings.ToLower(seg), id), 200, fmt.Sprintf(`{"id":%d,"prizes":[500,250]}`, id))
}
