package chflow

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"chflow/action"
	"chflow/tracing"
)

func TestRegister_RefreshesDetails(t *testing.T) {
	f := newFixture()
	f.challenge(5, "develop")

	task := f.layer.Register(context.Background(), 5, Credentials{TokenV3: "jwt"})
	if err := task.Wait(); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	refresh := task.Refresh()
	if refresh == nil {
		t.Fatal("expected a details refresh after registering")
	}
	env := refresh.Wait()
	if !env.OK() || env.Key != "5" || env.Category != CategoryDetails {
		t.Errorf("unexpected refresh envelope %+v", env)
	}

	want := []action.Type{action.RegisterInit, action.RegisterDone, action.GetDetailsInit, action.GetDetailsDone}
	got := f.bus.types()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	all := f.bus.all()
	if all[0].RequestID != all[1].RequestID {
		t.Error("REGISTER_INIT and REGISTER_DONE must share the request id")
	}
	if all[2].RequestID == all[0].RequestID {
		t.Error("the refresh is a separate flow")
	}
	if f.service.registered[0] != "5" {
		t.Errorf("unexpected register calls %v", f.service.registered)
	}
	if oks := f.metrics.mutations["register"]; len(oks) != 1 || !oks[0] {
		t.Errorf("unexpected mutation metrics %v", f.metrics.mutations)
	}
}

func TestRegister_FailureDoesNotRefresh(t *testing.T) {
	f := newFixture()
	f.challenge(5, "develop")
	f.service.mutateErr = &StatusError{Code: 403, Path: "/challenges/5/register"}

	task := f.layer.Register(context.Background(), 5, Credentials{TokenV3: "jwt"})
	if err := task.Wait(); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected status error, got %v", err)
	}
	if task.Refresh() != nil {
		t.Error("failed register must not refresh details")
	}
	f.layer.Wait()

	done := f.bus.ofType(action.RegisterDone)
	if len(done) != 1 || !done[0].Error {
		t.Fatalf("expected one failed REGISTER_DONE, got %v", f.bus.types())
	}
	res := done[0].Payload.(MutationResult)
	if res.Key != "5" || res.Kind != MutationRegister {
		t.Errorf("unexpected result %+v", res)
	}
	if len(f.bus.ofType(action.GetDetailsInit)) != 0 {
		t.Error("details must not be fetched")
	}
	if len(f.logger.logs) == 0 {
		t.Error("expected the failure to be logged")
	}
}

func TestUnregister_RefreshesDetails(t *testing.T) {
	f := newFixture()
	f.challenge(9, "design")

	task := f.layer.Unregister(context.Background(), "9", Credentials{})
	if err := task.Wait(); err != nil {
		t.Fatalf("unregister failed: %v", err)
	}
	task.Refresh().Wait()

	if f.service.unregisters[0] != "9" || len(f.service.registered) != 0 {
		t.Errorf("unexpected calls: register %v unregister %v", f.service.registered, f.service.unregisters)
	}
	types := f.bus.types()
	if types[0] != action.UnregisterInit || types[1] != action.UnregisterDone || types[2] != action.GetDetailsInit {
		t.Errorf("unexpected action order %v", types)
	}
}

func TestRegisterDone_DoesNotChain(t *testing.T) {
	f := newFixture()
	f.challenge(5, "develop")

	a := f.layer.RegisterDone(context.Background(), 5, Credentials{})
	f.layer.Wait()

	if a.Type != action.RegisterDone || a.Error {
		t.Errorf("unexpected action %+v", a)
	}
	if len(f.bus.all()) != 0 {
		t.Errorf("RegisterDone must not dispatch, got %v", f.bus.types())
	}
}

func TestSubmit_ReportsProgress(t *testing.T) {
	f := newFixture()
	f.service.progress = []float64{0.25, 0.5, 1}
	f.service.submitRes = SubmitResult{"id": "sub-1"}

	task := f.layer.Submit(context.Background(), SubmitRequest{
		Body:        []byte("zip"),
		ChallengeID: 7,
		Track:       "DESIGN",
	}, Credentials{TokenV3: "jwt"})

	res := task.Result()
	if !res.OK() || res.Kind != MutationSubmit || res.Key != "7" {
		t.Fatalf("unexpected result %+v", res)
	}
	if data, _ := res.Data.(SubmitResult); data["id"] != "sub-1" {
		t.Errorf("unexpected response %v", res.Data)
	}
	if task.Refresh() != nil {
		t.Error("submit must not refresh details")
	}
	f.layer.Wait()

	types := f.bus.types()
	want := []action.Type{action.SubmitInit, action.UploadProgress, action.UploadProgress, action.UploadProgress, action.SubmitDone}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("action %d: expected %s, got %s", i, want[i], types[i])
		}
	}
	for _, a := range f.bus.all() {
		if a.RequestID != task.RequestID {
			t.Errorf("%s has request id %s, want %s", a.Type, a.RequestID, task.RequestID)
		}
	}
	if p := f.bus.ofType(action.UploadProgress)[2].Payload; p != 1.0 {
		t.Errorf("expected final progress 1, got %v", p)
	}
	if f.service.submissions[0] != "7" || f.service.tracks[0] != "DESIGN" {
		t.Errorf("unexpected submit call %v %v", f.service.submissions, f.service.tracks)
	}
	if len(f.metrics.progress) != 3 {
		t.Errorf("expected 3 progress samples, got %v", f.metrics.progress)
	}
}

func TestSubmit_Failure(t *testing.T) {
	f := newFixture()
	f.service.mutateErr = errBoom

	task := f.layer.Submit(context.Background(), SubmitRequest{ChallengeID: 7}, Credentials{})
	if err := task.Wait(); !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	f.layer.Wait()

	done := f.bus.ofType(action.SubmitDone)
	if len(done) != 1 || !done[0].Error {
		t.Fatalf("expected failed SUBMIT_DONE, got %v", f.bus.types())
	}
	if res := done[0].Payload.(MutationResult); res.Data != nil {
		t.Errorf("failed submit must carry no response, got %v", res.Data)
	}
	if oks := f.metrics.mutations["submit"]; len(oks) != 1 || oks[0] {
		t.Errorf("unexpected mutation metrics %v", f.metrics.mutations)
	}
}

func TestUploadProgress_Clamped(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.3, 0.3},
		{1, 1},
		{7, 1},
	}
	for _, tt := range tests {
		a := UploadProgress(tt.in)
		if a.Type != action.UploadProgress || a.Payload != tt.want {
			t.Errorf("UploadProgress(%v) = %v, want %v", tt.in, a.Payload, tt.want)
		}
	}
}

func TestToggleCheckpointFeedback(t *testing.T) {
	a := ToggleCheckpointFeedback(11, true)
	if a.Type != action.ToggleCheckpointFeedback {
		t.Errorf("unexpected type %s", a.Type)
	}
	if p := a.Payload.(CheckpointToggle); p.SubmissionID != 11 || !p.Open {
		t.Errorf("unexpected payload %+v", p)
	}
	if SubmitReset().Type != action.SubmitReset {
		t.Error("unexpected SubmitReset type")
	}
}

func TestRegister_Traced(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	f := newFixture(WithTracer(tracing.NewOTelTracer(tracing.Config{ServiceName: "test", TracerProvider: tp})))
	f.challenge(5, "develop")

	f.layer.Register(context.Background(), 5, Credentials{})
	f.layer.Wait()

	spans := exporter.GetSpans()
	var mutation, call tracetest.SpanStub
	for _, s := range spans {
		if s.Name == "register" {
			mutation = s
		}
	}
	for _, s := range spans {
		if s.Name == "fetch apiv3" && s.Parent.SpanID() == mutation.SpanContext.SpanID() {
			call = s
		}
	}
	if mutation.Name == "" || call.Name == "" {
		t.Fatalf("expected a register span with a child call, got %v", spans)
	}

	requestID := f.bus.all()[0].RequestID
	found := false
	for _, kv := range mutation.Attributes {
		if kv.Key == tracing.RequestIDKey && kv.Value.AsString() == requestID {
			found = true
		}
	}
	if !found {
		t.Errorf("register span does not carry request id %s: %v", requestID, mutation.Attributes)
	}
}
