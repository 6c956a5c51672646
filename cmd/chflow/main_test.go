package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"chflow/tracing"
)

func TestNewTracerProvider_ExportsWhenEnabled(t *testing.T) {
	var out bytes.Buffer
	tp, err := newTracerProvider(config{traceStdout: true}, &out)
	if err != nil {
		t.Fatal(err)
	}

	tracer := tracing.NewOTelTracer(tracing.Config{ServiceName: "chflow", TracerProvider: tp})
	_, span := tracer.StartFlow(context.Background(), "details", "42", "req-1")
	span.End()

	// shutdown flushes the batcher
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "resolve details") {
		t.Errorf("span not exported: %q", out.String())
	}
}

func TestNewTracerProvider_SilentByDefault(t *testing.T) {
	var out bytes.Buffer
	tp, err := newTracerProvider(config{}, &out)
	if err != nil {
		t.Fatal(err)
	}

	_, span := tracing.NewOTelTracer(tracing.Config{TracerProvider: tp}).StartFlow(context.Background(), "details", "1", "req")
	span.End()
	tp.Shutdown(context.Background())

	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CHFLOW_TEST_INT", "12")
	t.Setenv("CHFLOW_TEST_BAD_INT", "x")
	t.Setenv("CHFLOW_TEST_BOOL", "false")

	if got := getEnvInt("CHFLOW_TEST_INT", 1); got != 12 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("CHFLOW_TEST_BAD_INT", 3); got != 3 {
		t.Errorf("malformed int should fall back, got %d", got)
	}
	if getEnvBool("CHFLOW_TEST_BOOL", true) {
		t.Error("getEnvBool should read false")
	}
	if got := getEnv("CHFLOW_TEST_UNSET", "def"); got != "def" {
		t.Errorf("getEnv = %q", got)
	}
}
