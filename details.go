package chflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"chflow/action"
)

// GetDetailsInit marks subject as the current details request.
func GetDetailsInit(subject any) action.Action {
	return action.New(action.GetDetailsInit, Key(subject))
}

// GetDetailsDone fetches and merges the details of a challenge and returns
// the DONE action. Failures are carried in the envelope, never returned.
func (l *Layer) GetDetailsDone(ctx context.Context, subject any, creds Credentials) action.Action {
	key := Key(subject)
	a := action.New(action.GetDetailsDone, nil)
	env := l.resolve(ctx, CategoryDetails, key, a.RequestID, func(ctx context.Context) (any, error) {
		return l.details(ctx, key, creds)
	})
	return doneAction(a, env)
}

// GetDetails dispatches GET_DETAILS_INIT for subject and resolves the
// details in the background.
func (l *Layer) GetDetails(ctx context.Context, subject any, creds Credentials) *Task {
	key := Key(subject)
	return l.run(ctx, GetDetailsInit(key), action.GetDetailsDone, CategoryDetails, func(ctx context.Context) (any, error) {
		return l.details(ctx, key, creds)
	})
}

// details runs the primary lookup followed by the v2 augmentation, and the
// member lookup alongside them when a v3 token is present.
func (l *Layer) details(ctx context.Context, key FenceKey, creds Credentials) (*Details, error) {
	if l.service == nil {
		return nil, ErrMissingCollaborator
	}

	filter := Filter{"id": key.String()}

	var (
		wg         sync.WaitGroup
		challenge  *Challenge
		extra      map[string]any
		user       *Challenge
		primaryErr error
		userErr    error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		challenge, primaryErr = l.primary(ctx, creds, filter)
		if primaryErr != nil {
			return
		}
		extra, primaryErr = l.augment(ctx, creds, key, challenge.Track)
	}()

	if creds.TokenV3 != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, userErr = l.member(ctx, creds, filter)
		}()
	}

	wg.Wait()

	if primaryErr != nil {
		return nil, primaryErr
	}
	if userErr != nil {
		return nil, userErr
	}

	return &Details{
		Challenge: challenge,
		Extra:     extra,
		User:      user,
	}, nil
}

func (l *Layer) primary(ctx context.Context, creds Credentials, filter Filter) (*Challenge, error) {
	ctx, span := l.tracer.StartFetch(ctx, "apiv3", "/challenges?"+filter.Encode())
	defer span.End()

	list, err := l.service.GetChallenges(ctx, creds, filter)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if list == nil || len(list.Challenges) == 0 {
		span.SetError(ErrChallengeNotFound)
		return nil, fmt.Errorf("%w: %s", ErrChallengeNotFound, filter["id"])
	}
	c := list.Challenges[0]
	return &c, nil
}

func (l *Layer) augment(ctx context.Context, creds Credentials, key FenceKey, track string) (map[string]any, error) {
	var extra map[string]any
	if err := l.fetchJSON(ctx, creds.TokenV2, l.detailsPath(track, key), &extra); err != nil {
		return nil, err
	}
	return extra, nil
}

func (l *Layer) member(ctx context.Context, creds Credentials, filter Filter) (*Challenge, error) {
	if l.decoder == nil {
		return nil, ErrMissingCollaborator
	}
	handle, err := l.decoder.Handle(creds.TokenV3)
	if err != nil {
		return nil, err
	}

	ctx, span := l.tracer.StartFetch(ctx, "apiv3", "/members/"+handle+"/challenges?"+filter.Encode())
	defer span.End()

	list, err := l.service.GetUserChallenges(ctx, creds, handle, filter)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	// not registered
	if list == nil || len(list.Challenges) == 0 {
		return nil, nil
	}
	c := list.Challenges[0]
	return &c, nil
}

func (l *Layer) detailsPath(track string, key FenceKey) string {
	return fmt.Sprintf("/%s/challenges/%s", l.trackSegment(track), key)
}

func (l *Layer) trackSegment(track string) string {
	track = strings.TrimSpace(track)
	if track == "" {
		track = l.config.DefaultTrack
	}
	return strings.ToLower(track)
}
