package chflow

import "chflow/action"

// CheckpointToggle is the payload of TOGGLE_CHECKPOINT_FEEDBACK.
type CheckpointToggle struct {
	SubmissionID int64
	Open         bool
}

// ToggleCheckpointFeedback opens or closes the feedback of one checkpoint result.
func ToggleCheckpointFeedback(submissionID int64, open bool) action.Action {
	return action.New(action.ToggleCheckpointFeedback, CheckpointToggle{
		SubmissionID: submissionID,
		Open:         open,
	})
}

// UploadProgress reports the uploaded fraction of a submission, clamped to [0,1].
func UploadProgress(pct float64) action.Action {
	switch {
	case pct < 0:
		pct = 0
	case pct > 1:
		pct = 1
	}
	return action.New(action.UploadProgress, pct)
}

// SubmitReset clears the submission state.
func SubmitReset() action.Action {
	return action.New(action.SubmitReset, nil)
}
