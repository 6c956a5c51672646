package chflow

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chflow/action"
	"chflow/metrics"
	"chflow/tracing"
)

// Layer is the request fencing action layer. It builds INIT and DONE actions
// for every fetch category and runs flows against the challenge APIs,
// dispatching their actions on a bus.
//
// The layer holds no fence state; comparing DONE keys against the latest
// INIT is the consumer's job.
type Layer struct {
	// Collaborators
	service ChallengeService
	api     APIClient
	decoder CredentialDecoder

	// Dependencies
	bus     action.Dispatcher
	metrics metrics.Metrics
	tracer  tracing.Tracer
	logger  Logger

	// Configuration
	config Config

	// background flows
	wg sync.WaitGroup
}

// LayerOption is a function that configures the Layer.
type LayerOption func(*Layer)

// WithService sets the v3 challenge service.
func WithService(s ChallengeService) LayerOption {
	return func(l *Layer) {
		l.service = s
	}
}

// WithAPIClient sets the v2 API client.
func WithAPIClient(c APIClient) LayerOption {
	return func(l *Layer) {
		l.api = c
	}
}

// WithDecoder sets the credential decoder.
func WithDecoder(d CredentialDecoder) LayerOption {
	return func(l *Layer) {
		l.decoder = d
	}
}

// WithDispatcher sets the dispatcher the flows publish actions on.
func WithDispatcher(d action.Dispatcher) LayerOption {
	return func(l *Layer) {
		l.bus = d
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) LayerOption {
	return func(l *Layer) {
		l.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t tracing.Tracer) LayerOption {
	return func(l *Layer) {
		l.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(lg Logger) LayerOption {
	return func(l *Layer) {
		l.logger = lg
	}
}

// WithLayerConfig sets the configuration for the layer.
func WithLayerConfig(cfg Config) LayerOption {
	return func(l *Layer) {
		l.config = cfg
	}
}

type defaultLogger struct{}

func (defaultLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// NewLayer creates a new Layer with the given options.
// Unset dependencies fall back to no-op implementations; unset collaborators
// make the corresponding flows fail with ErrMissingCollaborator.
func NewLayer(opts ...LayerOption) *Layer {
	l := &Layer{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.bus == nil {
		l.bus = action.NewNoOpBus()
	}
	if l.metrics == nil {
		l.metrics = &metrics.NoopMetrics{}
	}
	if l.tracer == nil {
		l.tracer = &tracing.NoopTracer{}
	}
	if l.logger == nil {
		l.logger = defaultLogger{}
	}

	return l
}

// Config returns the layer configuration.
func (l *Layer) Config() Config {
	return l.config
}

// Wait blocks until every flow started by the layer has dispatched its DONE
// action, including chained refreshes.
func (l *Layer) Wait() {
	l.wg.Wait()
}

func (l *Layer) dispatch(ctx context.Context, a action.Action) {
	if err := l.bus.Dispatch(ctx, a); err != nil {
		l.logger.Printf("[chflow] dispatch %s (request %s) failed: %v", a.Type, a.RequestID, err)
	}
}

// goFlow runs fn in the background, tracked by Wait.
func (l *Layer) goFlow(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// resolve wraps fn with tracing and metrics and packages its outcome.
func (l *Layer) resolve(ctx context.Context, cat Category, key FenceKey, requestID string, fn func(ctx context.Context) (any, error)) Envelope {
	ctx, span := l.tracer.StartFlow(ctx, string(cat), string(key), requestID)
	defer span.End()

	l.metrics.FetchStarted(string(cat))
	start := time.Now()

	data, err := fn(ctx)
	if err != nil {
		span.SetError(err)
		l.metrics.FetchFailed(string(cat), failureReason(err))
	} else {
		l.metrics.FetchCompleted(string(cat), time.Since(start))
	}

	return Wrap(cat, key, data, err)
}

// fetch performs a traced v2 GET.
func (l *Layer) fetch(ctx context.Context, token, path string) (*Response, error) {
	if l.api == nil {
		return nil, ErrMissingCollaborator
	}

	ctx, span := l.tracer.StartFetch(ctx, "apiv2", path)
	defer span.End()

	resp, err := l.api.Fetch(ctx, token, path)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return resp, nil
}

// fetchJSON performs a v2 GET and decodes a 2xx body into v.
func (l *Layer) fetchJSON(ctx context.Context, token, path string, v any) error {
	resp, err := l.fetch(ctx, token, path)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{Code: resp.StatusCode, Path: path}
	}
	return resp.JSON(v)
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case isStatus(err):
		return "status"
	case errors.Is(err, ErrDecodeResponse):
		return "decode"
	case errors.Is(err, ErrChallengeNotFound):
		return "not_found"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrNoCredentials), errors.Is(err, ErrInvalidToken):
		return "credentials"
	case errors.Is(err, ErrMissingCollaborator):
		return "unconfigured"
	default:
		return "transport"
	}
}

func isStatus(err error) bool {
	_, ok := StatusCode(err)
	return ok
}
