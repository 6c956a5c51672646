package chflow

import (
	"context"

	"chflow/action"
)

// SubmitRequest describes an upload.
type SubmitRequest struct {
	Body        []byte
	ChallengeID any
	Track       string
}

// RegisterInit starts a registration for subject.
func RegisterInit(subject any) action.Action {
	return action.New(action.RegisterInit, Key(subject))
}

// UnregisterInit starts an unregistration for subject.
func UnregisterInit(subject any) action.Action {
	return action.New(action.UnregisterInit, Key(subject))
}

// SubmitInit starts a submission for subject.
func SubmitInit(subject any) action.Action {
	return action.New(action.SubmitInit, Key(subject))
}

// RegisterDone registers the caller and returns the DONE action. It does not
// refresh details; Register does.
func (l *Layer) RegisterDone(ctx context.Context, subject any, creds Credentials) action.Action {
	key := Key(subject)
	a := action.New(action.RegisterDone, nil)
	return mutationAction(a, l.register(ctx, MutationRegister, key, creds, a.RequestID))
}

// UnregisterDone unregisters the caller and returns the DONE action.
func (l *Layer) UnregisterDone(ctx context.Context, subject any, creds Credentials) action.Action {
	key := Key(subject)
	a := action.New(action.UnregisterDone, nil)
	return mutationAction(a, l.register(ctx, MutationUnregister, key, creds, a.RequestID))
}

// SubmitDone uploads a submission and returns the DONE action. Progress is
// dispatched as UPLOAD_PROGRESS actions while the upload runs.
func (l *Layer) SubmitDone(ctx context.Context, req SubmitRequest, creds Credentials) action.Action {
	a := action.New(action.SubmitDone, nil)
	return mutationAction(a, l.submit(ctx, req, creds, a.RequestID))
}

// Register dispatches REGISTER_INIT, registers the caller in the background
// and, on success, starts a fresh details flow for the same subject.
func (l *Layer) Register(ctx context.Context, subject any, creds Credentials) *MutationTask {
	return l.mutate(ctx, RegisterInit(subject), action.RegisterDone, MutationRegister, creds)
}

// Unregister dispatches UNREGISTER_INIT, unregisters the caller in the
// background and, on success, starts a fresh details flow.
func (l *Layer) Unregister(ctx context.Context, subject any, creds Credentials) *MutationTask {
	return l.mutate(ctx, UnregisterInit(subject), action.UnregisterDone, MutationUnregister, creds)
}

// Submit dispatches SUBMIT_INIT and uploads in the background. Submit never
// refreshes details.
func (l *Layer) Submit(ctx context.Context, req SubmitRequest, creds Credentials) *MutationTask {
	init := SubmitInit(req.ChallengeID)
	key := init.Payload.(FenceKey)
	l.dispatch(ctx, init)

	task := newMutationTask(MutationSubmit, key, init.RequestID)
	l.goFlow(func() {
		res := l.submit(ctx, req, creds, init.RequestID)
		l.dispatch(ctx, mutationAction(action.New(action.SubmitDone, nil).WithRequestID(init.RequestID), res))
		task.complete(res, nil)
	})
	return task
}

func (l *Layer) mutate(ctx context.Context, init action.Action, doneType action.Type, kind MutationKind, creds Credentials) *MutationTask {
	key := init.Payload.(FenceKey)
	l.dispatch(ctx, init)

	task := newMutationTask(kind, key, init.RequestID)
	l.goFlow(func() {
		res := l.register(ctx, kind, key, creds, init.RequestID)
		l.dispatch(ctx, mutationAction(action.New(doneType, nil).WithRequestID(init.RequestID), res))

		var refresh *Task
		if res.OK() {
			refresh = l.GetDetails(ctx, key, creds)
		}
		task.complete(res, refresh)
	})
	return task
}

// register performs a register or unregister call.
func (l *Layer) register(ctx context.Context, kind MutationKind, key FenceKey, creds Credentials, requestID string) MutationResult {
	res := MutationResult{Kind: kind, Key: key}
	if l.service == nil {
		res.Err = ErrMissingCollaborator
		l.metrics.MutationCompleted(string(kind), false)
		return res
	}

	ctx, span := l.tracer.StartMutation(ctx, string(kind), key.String(), requestID)
	defer span.End()
	ctx, call := l.tracer.StartFetch(ctx, "apiv3", "/challenges/"+key.String()+"/"+string(kind))
	defer call.End()

	if kind == MutationUnregister {
		res.Err = l.service.Unregister(ctx, creds, key.String())
	} else {
		res.Err = l.service.Register(ctx, creds, key.String())
	}
	if res.Err != nil {
		call.SetError(res.Err)
		span.SetError(res.Err)
		l.logger.Printf("[chflow] %s %s failed: %v", kind, key, res.Err)
	}
	l.metrics.MutationCompleted(string(kind), res.Err == nil)
	return res
}

func (l *Layer) submit(ctx context.Context, req SubmitRequest, creds Credentials, requestID string) MutationResult {
	key := Key(req.ChallengeID)
	res := MutationResult{Kind: MutationSubmit, Key: key}
	if l.service == nil {
		res.Err = ErrMissingCollaborator
		l.metrics.MutationCompleted(string(MutationSubmit), false)
		return res
	}

	ctx, span := l.tracer.StartMutation(ctx, string(MutationSubmit), key.String(), requestID)
	defer span.End()
	ctx, call := l.tracer.StartFetch(ctx, "apiv3", "/challenges/"+key.String()+"/submissions")
	defer call.End()

	onProgress := func(pct float64) {
		l.metrics.UploadProgress(pct)
		l.dispatch(ctx, UploadProgress(pct).WithRequestID(requestID))
	}

	data, err := l.service.Submit(ctx, creds, req.Body, key.String(), req.Track, onProgress)
	if err != nil {
		call.SetError(err)
		span.SetError(err)
		l.logger.Printf("[chflow] submit %s failed: %v", key, err)
		res.Err = err
	} else {
		res.Data = data
	}
	l.metrics.MutationCompleted(string(MutationSubmit), err == nil)
	return res
}

func mutationAction(a action.Action, res MutationResult) action.Action {
	a.Payload = res
	return a.WithError(!res.OK())
}
