package chflow

import (
	"context"
	"fmt"
	"net/http"

	"chflow/action"
)

// GetSubmissionsInit marks subject as the current submissions request.
func GetSubmissionsInit(subject any) action.Action {
	return action.New(action.GetSubmissionsInit, Key(subject))
}

// FetchResultsInit marks subject as the current results request.
func FetchResultsInit(subject any) action.Action {
	return action.New(action.FetchResultsInit, Key(subject))
}

// FetchCheckpointsInit marks subject as the current checkpoints request.
func FetchCheckpointsInit(subject any) action.Action {
	return action.New(action.FetchCheckpointsInit, Key(subject))
}

// GetSubmissionsDone fetches the caller's submissions to a challenge.
func (l *Layer) GetSubmissionsDone(ctx context.Context, subject any, creds Credentials) action.Action {
	key := Key(subject)
	a := action.New(action.GetSubmissionsDone, nil)
	env := l.resolve(ctx, CategorySubmissions, key, a.RequestID, func(ctx context.Context) (any, error) {
		return l.submissions(ctx, key, creds)
	})
	return doneAction(a, env)
}

// GetSubmissions dispatches GET_SUBMISSIONS_INIT and resolves in the background.
func (l *Layer) GetSubmissions(ctx context.Context, subject any, creds Credentials) *Task {
	key := Key(subject)
	return l.run(ctx, GetSubmissionsInit(key), action.GetSubmissionsDone, CategorySubmissions, func(ctx context.Context) (any, error) {
		return l.submissions(ctx, key, creds)
	})
}

// FetchResultsDone fetches the final results of a challenge on track.
func (l *Layer) FetchResultsDone(ctx context.Context, subject any, track string, creds Credentials) action.Action {
	key := Key(subject)
	a := action.New(action.FetchResultsDone, nil)
	env := l.resolve(ctx, CategoryResults, key, a.RequestID, func(ctx context.Context) (any, error) {
		return l.results(ctx, key, track, creds)
	})
	return doneAction(a, env)
}

// FetchResults dispatches FETCH_RESULTS_INIT and resolves in the background.
func (l *Layer) FetchResults(ctx context.Context, subject any, track string, creds Credentials) *Task {
	key := Key(subject)
	return l.run(ctx, FetchResultsInit(key), action.FetchResultsDone, CategoryResults, func(ctx context.Context) (any, error) {
		return l.results(ctx, key, track, creds)
	})
}

// FetchCheckpointsDone fetches the design checkpoints of a challenge. A
// non-200 answer yields an envelope carrying a *StatusError.
func (l *Layer) FetchCheckpointsDone(ctx context.Context, subject any, creds Credentials) action.Action {
	key := Key(subject)
	a := action.New(action.FetchCheckpointsDone, nil)
	env := l.resolve(ctx, CategoryCheckpoints, key, a.RequestID, func(ctx context.Context) (any, error) {
		return l.checkpoints(ctx, key, creds)
	})
	return doneAction(a, env)
}

// FetchCheckpoints dispatches FETCH_CHECKPOINTS_INIT and resolves in the background.
func (l *Layer) FetchCheckpoints(ctx context.Context, subject any, creds Credentials) *Task {
	key := Key(subject)
	return l.run(ctx, FetchCheckpointsInit(key), action.FetchCheckpointsDone, CategoryCheckpoints, func(ctx context.Context) (any, error) {
		return l.checkpoints(ctx, key, creds)
	})
}

func (l *Layer) submissions(ctx context.Context, key FenceKey, creds Credentials) ([]Submission, error) {
	var body struct {
		Submissions []Submission `json:"submissions"`
	}
	path := fmt.Sprintf("/challenges/submissions/%s/mySubmissions", key)
	if err := l.fetchJSON(ctx, creds.TokenV2, path, &body); err != nil {
		return nil, err
	}
	return body.Submissions, nil
}

func (l *Layer) results(ctx context.Context, key FenceKey, track string, creds Credentials) ([]Result, error) {
	var body struct {
		Results []Result `json:"results"`
	}
	path := fmt.Sprintf("/%s/challenges/result/%s", l.trackSegment(track), key)
	if err := l.fetchJSON(ctx, creds.TokenV2, path, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

func (l *Layer) checkpoints(ctx context.Context, key FenceKey, creds Credentials) (*Checkpoints, error) {
	path := fmt.Sprintf("/%s/challenges/checkpoint/%s", l.trackSegment(l.config.CheckpointTrack), key)

	resp, err := l.fetch(ctx, creds.TokenV2, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Path: path}
	}

	var cp Checkpoints
	if err := resp.JSON(&cp); err != nil {
		return nil, err
	}
	for i := range cp.CheckpointResults {
		cp.CheckpointResults[i].Expanded = false
	}
	return &cp, nil
}

// run dispatches init, then resolves fn in the background and dispatches the
// DONE action under the same request ID.
func (l *Layer) run(ctx context.Context, init action.Action, doneType action.Type, cat Category, fn func(ctx context.Context) (any, error)) *Task {
	key, _ := init.Payload.(FenceKey)
	l.dispatch(ctx, init)

	task := newTask(cat, key, init.RequestID)
	l.goFlow(func() {
		env := l.resolve(ctx, cat, key, init.RequestID, fn)
		l.dispatch(ctx, doneAction(action.New(doneType, nil).WithRequestID(init.RequestID), env))
		task.complete(env)
	})
	return task
}

func doneAction(a action.Action, env Envelope) action.Action {
	a.Payload = env
	return a.WithError(!env.OK())
}
