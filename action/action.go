// Package action provides the action definitions and the dispatch bus for chflow.
package action

import (
	"time"

	"github.com/google/uuid"
)

// Type 动作类型
type Type string

const (
	// Challenge details
	GetDetailsInit Type = "CHALLENGE/GET_DETAILS_INIT"
	GetDetailsDone Type = "CHALLENGE/GET_DETAILS_DONE"

	// My submissions for a challenge
	GetSubmissionsInit Type = "CHALLENGE/GET_SUBMISSIONS_INIT"
	GetSubmissionsDone Type = "CHALLENGE/GET_SUBMISSIONS_DONE"

	// Final results
	FetchResultsInit Type = "CHALLENGE/FETCH_RESULTS_INIT"
	FetchResultsDone Type = "CHALLENGE/FETCH_RESULTS_DONE"

	// Design checkpoints
	FetchCheckpointsInit     Type = "CHALLENGE/FETCH_CHECKPOINTS_INIT"
	FetchCheckpointsDone     Type = "CHALLENGE/FETCH_CHECKPOINTS_DONE"
	ToggleCheckpointFeedback Type = "CHALLENGE/TOGGLE_CHECKPOINT_FEEDBACK"

	// Mutations
	RegisterInit   Type = "CHALLENGE/REGISTER_INIT"
	RegisterDone   Type = "CHALLENGE/REGISTER_DONE"
	UnregisterInit Type = "CHALLENGE/UNREGISTER_INIT"
	UnregisterDone Type = "CHALLENGE/UNREGISTER_DONE"
	SubmitInit     Type = "CHALLENGE/SUBMIT_INIT"
	SubmitDone     Type = "CHALLENGE/SUBMIT_DONE"
	SubmitReset    Type = "CHALLENGE/SUBMIT_RESET"
	UploadProgress Type = "CHALLENGE/UPLOAD_PROGRESS"

	// Filter panel
	FilterPanelSetSearchText   Type = "CHALLENGE_LISTING/FILTER_PANEL/SET_SEARCH_TEXT"
	FilterPanelSetExpanded     Type = "CHALLENGE_LISTING/FILTER_PANEL/SET_EXPANDED"
	FilterPanelSetTrackEnabled Type = "CHALLENGE_LISTING/FILTER_PANEL/SET_TRACK_ENABLED"
	FilterPanelSetSubtracks    Type = "CHALLENGE_LISTING/FILTER_PANEL/SET_SUBTRACKS"
	FilterPanelClearFilters    Type = "CHALLENGE_LISTING/FILTER_PANEL/CLEAR_FILTERS"
)

// Action 动作
// Shape follows flux-standard-action: Error is true when Payload carries a failure.
type Action struct {
	Type      Type      // 动作类型
	Payload   any       // 载荷
	Error     bool      // 载荷是否为错误
	RequestID string    // 关联同一流程的 INIT/DONE
	Timestamp time.Time // 创建时间
}

// New creates an action of the given type with a fresh request ID.
func New(t Type, payload any) Action {
	return Action{
		Type:      t,
		Payload:   payload,
		RequestID: uuid.NewString(),
		Timestamp: time.Now(),
	}
}

// WithRequestID sets the request ID on the action.
func (a Action) WithRequestID(id string) Action {
	a.RequestID = id
	return a
}

// WithError marks the action as carrying a failure.
func (a Action) WithError(failed bool) Action {
	a.Error = failed
	return a
}

// String returns the string representation of the action type.
func (t Type) String() string {
	return string(t)
}
