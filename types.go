package chflow

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Credentials holds the opaque tokens for both API versions.
type Credentials struct {
	TokenV2 string // 旧版 API 令牌
	TokenV3 string // 新版 API 令牌，同时用于解析用户名
}

// Filter is a set of equality constraints sent to the challenge service.
type Filter map[string]string

// Encode renders the filter as "k1=v1&k2=v2" with keys in sorted order.
func (f Filter) Encode() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, "&")
}

// Challenge is a challenge record as returned by the v3 service.
type Challenge struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Track          string       `json:"track"`
	SubTrack       string       `json:"subTrack"`
	Status         string       `json:"status"`
	NumRegistrants int          `json:"numRegistrants"`
	NumSubmissions int          `json:"numSubmissions"`
	UserDetails    *UserDetails `json:"userDetails,omitempty"`
}

// UserDetails carries the caller's relationship with a challenge.
type UserDetails struct {
	Roles             []string `json:"roles"`
	HasUserSubmitted  bool     `json:"hasUserSubmittedForReview"`
	SubmissionReviews []any    `json:"submissionReviewScores,omitempty"`
}

// ChallengeList is the result of a challenge listing call.
type ChallengeList struct {
	Challenges []Challenge `json:"challenges"`
	TotalCount int         `json:"totalCount"`
}

// Details is the merged result of the details flow.
type Details struct {
	// Challenge is the primary v3 record.
	Challenge *Challenge
	// Extra is the v2 augmentation keyed by track.
	Extra map[string]any
	// User is the caller's own record, nil when no v3 token was supplied.
	User *Challenge
}

// Submission is one of the caller's submissions to a challenge.
type Submission struct {
	SubmissionID     int64  `json:"submissionId"`
	SubmissionStatus string `json:"submissionStatus"`
	SubmissionDate   string `json:"submissionDate"`
	Placement        int    `json:"placement,omitempty"`
}

// Result is one row of the final results.
type Result struct {
	Handle         string  `json:"handle"`
	Placement      int     `json:"placement"`
	FinalScore     float64 `json:"finalScore"`
	SubmissionDate string  `json:"submissionDate"`
}

// CheckpointResult is feedback for a single checkpoint submission.
type CheckpointResult struct {
	SubmissionID int64  `json:"submissionId"`
	Feedback     string `json:"feedback"`
	Expanded     bool   `json:"expanded"`
}

// Checkpoints is the design checkpoint summary of a challenge.
type Checkpoints struct {
	NumberOfSubmissions int                `json:"numberOfSubmissions"`
	GeneralFeedback     string             `json:"generalFeedback"`
	CheckpointResults   []CheckpointResult `json:"checkpointResults"`
}

// SubmitResult is whatever the submission service answered with.
type SubmitResult map[string]any

// Response is a buffered API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	return nil
}
