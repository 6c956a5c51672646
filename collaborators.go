package chflow

import "context"

// ChallengeService is the v3 challenge API.
type ChallengeService interface {
	// GetChallenges lists challenges matching filter.
	GetChallenges(ctx context.Context, creds Credentials, filter Filter) (*ChallengeList, error)

	// GetUserChallenges lists the challenges of a member matching filter.
	GetUserChallenges(ctx context.Context, creds Credentials, handle string, filter Filter) (*ChallengeList, error)

	// Register registers the caller for a challenge.
	Register(ctx context.Context, creds Credentials, challengeID string) error

	// Unregister removes the caller's registration.
	Unregister(ctx context.Context, creds Credentials, challengeID string) error

	// Submit uploads a submission. onProgress receives upload fractions in [0,1]
	// and may be nil.
	Submit(ctx context.Context, creds Credentials, body []byte, challengeID, track string, onProgress func(float64)) (SubmitResult, error)
}

// APIClient is the v2 secondary API.
type APIClient interface {
	// Fetch performs a GET against path. A non-2xx status is not an error
	// at this level; the caller inspects Response.StatusCode.
	Fetch(ctx context.Context, token, path string) (*Response, error)
}

// CredentialDecoder turns an opaque token into a user handle.
type CredentialDecoder interface {
	Handle(token string) (string, error)
}

// Logger 日志接口
type Logger interface {
	Printf(format string, v ...any)
}
