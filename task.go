package chflow

// Task is the handle of a running fetch flow. Its INIT action has already
// been dispatched; Wait blocks until the DONE action has been dispatched.
type Task struct {
	Category  Category
	Key       FenceKey
	RequestID string

	done chan struct{}
	env  Envelope
}

func newTask(cat Category, key FenceKey, requestID string) *Task {
	return &Task{
		Category:  cat,
		Key:       key,
		RequestID: requestID,
		done:      make(chan struct{}),
	}
}

func (t *Task) complete(env Envelope) {
	t.env = env
	close(t.done)
}

// Done is closed once the DONE action has been dispatched.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the flow finishes and returns its envelope.
func (t *Task) Wait() Envelope {
	<-t.done
	return t.env
}

// Result returns the envelope and true if the flow has finished.
func (t *Task) Result() (Envelope, bool) {
	select {
	case <-t.done:
		return t.env, true
	default:
		return Envelope{}, false
	}
}

// MutationKind names a side-effecting operation.
type MutationKind string

const (
	MutationRegister   MutationKind = "register"
	MutationUnregister MutationKind = "unregister"
	MutationSubmit     MutationKind = "submit"
)

// MutationResult is the DONE payload of a mutation.
type MutationResult struct {
	Kind MutationKind
	Key  FenceKey
	Data any
	Err  error
}

// OK reports whether the mutation succeeded.
func (r MutationResult) OK() bool {
	return r.Err == nil
}

// MutationTask is the handle of a running mutation. A successful register or
// unregister also starts a details refresh, available from Refresh once the
// mutation has finished.
type MutationTask struct {
	Kind      MutationKind
	Key       FenceKey
	RequestID string

	done    chan struct{}
	result  MutationResult
	refresh *Task
}

func newMutationTask(kind MutationKind, key FenceKey, requestID string) *MutationTask {
	return &MutationTask{
		Kind:      kind,
		Key:       key,
		RequestID: requestID,
		done:      make(chan struct{}),
	}
}

func (t *MutationTask) complete(r MutationResult, refresh *Task) {
	t.result = r
	t.refresh = refresh
	close(t.done)
}

// Done is closed once the mutation DONE action has been dispatched.
func (t *MutationTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the mutation finishes and returns its error.
func (t *MutationTask) Wait() error {
	<-t.done
	return t.result.Err
}

// Result blocks until the mutation finishes and returns its outcome.
func (t *MutationTask) Result() MutationResult {
	<-t.done
	return t.result
}

// Refresh blocks until the mutation finishes and returns the chained details
// task, or nil when the mutation failed or does not chain.
func (t *MutationTask) Refresh() *Task {
	<-t.done
	return t.refresh
}
