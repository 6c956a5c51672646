// Package apiv3 is the HTTP implementation of the v3 challenge service.
package apiv3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"chflow"
	"chflow/circuit"
)

// ServiceName is the breaker name of the v3 API.
const ServiceName = "apiv3"

// Service talks to the v3 challenge API.
type Service struct {
	baseURL string
	http    *http.Client
	breaker circuit.CircuitBreaker
}

var _ chflow.ChallengeService = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.http = c
	}
}

// WithBreaker guards every call with the named breaker of b.
func WithBreaker(b circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b.Get(ServiceName)
	}
}

// NewService creates a service rooted at baseURL. The default HTTP client sets no
// timeout; bound calls through ctx or WithHTTPClient.
func NewService(baseURL string, opts ...Option) *Service {
	s := &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// listEnvelope is the v3 wrapper around list results.
type listEnvelope struct {
	Result struct {
		Status   int                `json:"status"`
		Content  []chflow.Challenge `json:"content"`
		Metadata struct {
			TotalCount int `json:"totalCount"`
		} `json:"metadata"`
	} `json:"result"`
}

// GetChallenges implements chflow.ChallengeService.
func (s *Service) GetChallenges(ctx context.Context, creds chflow.Credentials, filter chflow.Filter) (*chflow.ChallengeList, error) {
	return s.list(ctx, creds, "/challenges", filter)
}

// GetUserChallenges implements chflow.ChallengeService.
func (s *Service) GetUserChallenges(ctx context.Context, creds chflow.Credentials, handle string, filter chflow.Filter) (*chflow.ChallengeList, error) {
	return s.list(ctx, creds, "/members/"+url.PathEscape(handle)+"/challenges", filter)
}

func (s *Service) list(ctx context.Context, creds chflow.Credentials, path string, filter chflow.Filter) (*chflow.ChallengeList, error) {
	if len(filter) > 0 {
		path += "?" + url.Values{"filter": {filter.Encode()}}.Encode()
	}

	body, err := s.call(ctx, creds, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", chflow.ErrDecodeResponse, err)
	}

	total := env.Result.Metadata.TotalCount
	if total == 0 {
		total = len(env.Result.Content)
	}
	return &chflow.ChallengeList{
		Challenges: env.Result.Content,
		TotalCount: total,
	}, nil
}

// Register implements chflow.ChallengeService.
func (s *Service) Register(ctx context.Context, creds chflow.Credentials, challengeID string) error {
	_, err := s.call(ctx, creds, http.MethodPost, "/challenges/"+url.PathEscape(challengeID)+"/register", "", nil)
	return err
}

// Unregister implements chflow.ChallengeService.
func (s *Service) Unregister(ctx context.Context, creds chflow.Credentials, challengeID string) error {
	_, err := s.call(ctx, creds, http.MethodPost, "/challenges/"+url.PathEscape(challengeID)+"/unregister", "", nil)
	return err
}

// Submit implements chflow.ChallengeService. onProgress sees the fraction of
// body handed to the transport.
func (s *Service) Submit(ctx context.Context, creds chflow.Credentials, body []byte, challengeID, track string, onProgress func(float64)) (chflow.SubmitResult, error) {
	path := "/challenges/" + url.PathEscape(challengeID) + "/submissions"
	if track != "" {
		path += "?" + url.Values{"track": {strings.ToLower(track)}}.Encode()
	}

	var r io.Reader = bytes.NewReader(body)
	if onProgress != nil {
		r = &progressReader{r: r, total: int64(len(body)), onProgress: onProgress}
	}

	resp, err := s.call(ctx, creds, http.MethodPost, path, "application/octet-stream", r)
	if err != nil {
		return nil, err
	}

	result := chflow.SubmitResult{}
	if len(bytes.TrimSpace(resp)) > 0 {
		if err := json.Unmarshal(resp, &result); err != nil {
			return nil, fmt.Errorf("%w: %v", chflow.ErrDecodeResponse, err)
		}
	}
	return result, nil
}

func (s *Service) call(ctx context.Context, creds chflow.Credentials, method, path, contentType string, body io.Reader) ([]byte, error) {
	if s.breaker == nil {
		return s.do(ctx, creds, method, path, contentType, body)
	}

	var (
		out       []byte
		clientErr error
	)
	err := s.breaker.Execute(ctx, func() error {
		var err error
		out, err = s.do(ctx, creds, method, path, contentType, body)
		// 4xx answers are the caller's fault, not an outage
		if code, ok := chflow.StatusCode(err); ok && code < http.StatusInternalServerError {
			clientErr = err
			return nil
		}
		return err
	})
	if clientErr != nil {
		return nil, clientErr
	}
	return out, err
}

func (s *Service) do(ctx context.Context, creds chflow.Credentials, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if creds.TokenV3 != "" {
		req.Header.Set("Authorization", "Bearer "+creds.TokenV3)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &chflow.StatusError{Code: resp.StatusCode, Path: path}
	}
	return data, nil
}

// progressReader reports the fraction read so far.
type progressReader struct {
	r          io.Reader
	read       int64
	total      int64
	onProgress func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.onProgress(float64(p.read) / float64(p.total))
	}
	if err == io.EOF && p.total == 0 {
		p.onProgress(1)
	}
	return n, err
}
