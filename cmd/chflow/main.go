// Package main runs the challenge action layer against the live APIs and
// serves the admin view of its fences.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"chflow"
	"chflow/action"
	"chflow/admin"
	"chflow/apiv2"
	"chflow/apiv3"
	"chflow/circuit"
	"chflow/circuit/memory"
	"chflow/credential"
	promMetrics "chflow/metrics/prometheus"
	"chflow/store"
	redisfence "chflow/store/redis"
	"chflow/tracing"
)

// config is read from CHFLOW_* environment variables.
type config struct {
	addr        string
	apiV2URL    string
	apiV3URL    string
	tokenV2     string
	tokenV3     string
	jwtSecret   string
	redisAddr   string
	fenceTTL    time.Duration
	challengeID string
	track       string
	serve       bool
	traceStdout bool

	defaultTrack     string
	circuitThreshold int
	circuitTimeout   time.Duration
}

func loadConfig() config {
	return config{
		addr:        getEnv("CHFLOW_ADMIN_ADDR", ":8080"),
		apiV2URL:    getEnv("CHFLOW_API_V2_URL", "https://api.topcoder.com/v2"),
		apiV3URL:    getEnv("CHFLOW_API_V3_URL", "https://api.topcoder.com/v3"),
		tokenV2:     getEnv("CHFLOW_TOKEN_V2", ""),
		tokenV3:     getEnv("CHFLOW_TOKEN_V3", ""),
		jwtSecret:   getEnv("CHFLOW_JWT_SECRET", ""),
		redisAddr:   getEnv("CHFLOW_REDIS_ADDR", ""),
		fenceTTL:    time.Duration(getEnvInt("CHFLOW_FENCE_TTL_SECONDS", 0)) * time.Second,
		challengeID: getEnv("CHFLOW_CHALLENGE_ID", ""),
		track:       getEnv("CHFLOW_TRACK", ""),
		serve:       getEnvBool("CHFLOW_SERVE", true),
		traceStdout: getEnvBool("CHFLOW_TRACE_STDOUT", false),

		defaultTrack:     getEnv("CHFLOW_DEFAULT_TRACK", "develop"),
		circuitThreshold: getEnvInt("CHFLOW_CIRCUIT_THRESHOLD", 5),
		circuitTimeout:   time.Duration(getEnvInt("CHFLOW_CIRCUIT_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

func main() {
	cfg := loadConfig()

	layerCfg := chflow.ApplyOptions(
		chflow.WithDefaultTrack(cfg.defaultTrack),
		chflow.WithCircuitThreshold(cfg.circuitThreshold),
		chflow.WithCircuitTimeout(cfg.circuitTimeout),
	)
	if err := layerCfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := promMetrics.New(promMetrics.Config{Namespace: "chflow", Registry: registry})

	// Tracing
	tp, err := newTracerProvider(cfg, os.Stdout)
	if err != nil {
		log.Fatalf("trace exporter: %v", err)
	}
	defer tp.Shutdown(context.Background())
	tracer := tracing.NewOTelTracer(tracing.Config{ServiceName: "chflow", TracerProvider: tp})

	// Circuit breakers, one per upstream
	breakerCfg := layerCfg.ToBreakerConfig()
	breakerCfg.OnStateChange = func(service string, from, to circuit.State) {
		log.Printf("[chflow] circuit %s: %s -> %s", service, from, to)
		metrics.CircuitStateChanged(service, to)
	}
	breaker := memory.NewMemoryBreakerWithConfig(breakerCfg)

	// Fences
	var fences store.FenceState = store.NewMemoryFenceState()
	if cfg.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis %s: %v", cfg.redisAddr, err)
		}
		fences = redisfence.NewRedisFenceState(client, redisfence.WithTTL(cfg.fenceTTL))
	}

	// Bus, store and action log
	bus := action.NewMemoryBus()
	st := store.New(store.WithFenceState(fences), store.WithMetrics(metrics))
	actions := admin.NewActionLog(1000)
	if err := st.Attach(bus); err != nil {
		log.Fatalf("attach store: %v", err)
	}
	if err := bus.SubscribeAll(actions.Handler()); err != nil {
		log.Fatalf("attach action log: %v", err)
	}

	var decoderOpts []credential.Option
	if cfg.jwtSecret != "" {
		decoderOpts = append(decoderOpts, credential.WithVerifyKey([]byte(cfg.jwtSecret)))
	}

	layer := chflow.NewLayer(
		chflow.WithService(apiv3.NewService(cfg.apiV3URL, apiv3.WithBreaker(breaker))),
		chflow.WithAPIClient(apiv2.NewClient(cfg.apiV2URL, apiv2.WithBreaker(breaker))),
		chflow.WithDecoder(credential.NewJWTDecoder(decoderOpts...)),
		chflow.WithDispatcher(bus),
		chflow.WithMetrics(metrics),
		chflow.WithTracer(tracer),
		chflow.WithLayerConfig(layerCfg),
	)

	if cfg.challengeID != "" {
		loadChallenge(layer, st, cfg)
	}

	if !cfg.serve {
		return
	}

	server := admin.NewServer(
		admin.WithAddr(cfg.addr),
		admin.WithStore(st),
		admin.WithBreaker(breaker),
		admin.WithActionLog(actions),
		admin.WithGatherer(registry),
	)

	go func() {
		log.Printf("[chflow] admin listening on %s", cfg.addr)
		if err := server.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	layer.Wait()
	if err := server.Stop(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// newTracerProvider exports spans to w when CHFLOW_TRACE_STDOUT is set and
// drops them otherwise.
func newTracerProvider(cfg config, w io.Writer) (*sdktrace.TracerProvider, error) {
	if !cfg.traceStdout {
		return sdktrace.NewTracerProvider(), nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter)), nil
}

// loadChallenge runs every fetch flow for one challenge and prints what the
// store settled on.
func loadChallenge(layer *chflow.Layer, st *store.Store, cfg config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creds := chflow.Credentials{TokenV2: cfg.tokenV2, TokenV3: cfg.tokenV3}
	layer.GetDetails(ctx, cfg.challengeID, creds)
	layer.GetSubmissions(ctx, cfg.challengeID, creds)
	layer.FetchResults(ctx, cfg.challengeID, cfg.track, creds)
	layer.FetchCheckpoints(ctx, cfg.challengeID, creds)
	layer.Wait()

	for _, cat := range chflow.Categories {
		slot := st.Slot(cat)
		if slot.Err != nil {
			fmt.Printf("%-12s %s: error: %v\n", cat, slot.Key, slot.Err)
			continue
		}
		fmt.Printf("%-12s %s: ok\n", cat, slot.Key)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[chflow] ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[chflow] ignoring %s=%q: %v", key, v, err)
		return def
	}
	return b
}
