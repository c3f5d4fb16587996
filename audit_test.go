package leadAuth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

func auditConfig(t *testing.T) Config {
	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false
	return cfg
}

// collectEvents closes the engine so the dispatcher drains, then reads every
// buffered event.
func collectEvents(env *engineEnv, sink *ChannelSink) []AuditEvent {
	env.engine.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfType(events []AuditEvent, eventType string) []AuditEvent {
	var out []AuditEvent
	for _, ev := range events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = false
	sink := &countingSink{}
	env := newEngineEnv(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })

	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	_, _ = env.engine.Verify(context.Background(), pair.AccessToken, deviceF2)
	env.engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

type gatedSink struct {
	gate chan struct{}
}

func (s *gatedSink) Emit(context.Context, AuditEvent) { <-s.gate }

func TestAuditDropsFeedMetric(t *testing.T) {
	cfg := auditConfig(t)
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true
	sink := &gatedSink{gate: make(chan struct{})}
	env := newEngineEnv(t, cfg, func(b *Builder) {
		b.WithAuditSink(sink).WithMetricsEnabled(true)
	})
	defer close(sink.gate)

	for i := 0; i < 6; i++ {
		mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	}

	dropped := env.engine.AuditDropped()
	if dropped == 0 {
		t.Fatal("expected drops with a stalled sink and a one-slot buffer")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAuditDropped]; got != dropped {
		t.Fatalf("audit dropped metric = %d, dispatcher dropped = %d", got, dropped)
	}
}

func TestAuditIssueEventFields(t *testing.T) {
	sink := NewChannelSink(32)
	env := newEngineEnv(t, auditConfig(t), func(b *Builder) { b.WithAuditSink(sink) })

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	pair, err := env.engine.Issue(ctx, agentPrincipal(), deviceF1)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	events := eventsOfType(collectEvents(env, sink), "issue_success")
	if len(events) != 1 {
		t.Fatalf("expected one issue_success event, got %d", len(events))
	}
	ev := events[0]
	if ev.IP != "198.51.100.33" {
		t.Fatalf("expected IP 198.51.100.33, got %q", ev.IP)
	}
	if ev.SubjectID != "user-1" || ev.OrganizationID != "org-1" {
		t.Fatalf("unexpected subject fields: %+v", ev)
	}
	if ev.ChainID != pair.ChainID || ev.TokenID != pair.TokenID {
		t.Fatalf("unexpected ids: %+v", ev)
	}
	if !ev.Success || ev.Error != "" {
		t.Fatalf("expected success without error: %+v", ev)
	}
	if !ev.Timestamp.Equal(env.clock.Now().UTC()) {
		t.Fatalf("expected engine clock timestamp, got %v", ev.Timestamp)
	}
}

func TestAuditReuseAndChainNotFoundEvents(t *testing.T) {
	sink := NewChannelSink(32)
	env := newEngineEnv(t, auditConfig(t), func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, deviceF1); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, deviceF1); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected, got %v", err)
	}
	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, deviceF1); !errors.Is(err, ErrChainNotFound) {
		t.Fatalf("expected ErrChainNotFound, got %v", err)
	}

	events := collectEvents(env, sink)

	rotated := eventsOfType(events, "rotate_success")
	if len(rotated) != 1 || rotated[0].Metadata["generation"] != "1" {
		t.Fatalf("expected one rotate_success at generation 1, got %+v", rotated)
	}

	reuse := eventsOfType(events, "refresh_reuse_detected")
	if len(reuse) != 1 {
		t.Fatalf("expected one reuse event, got %d", len(reuse))
	}
	if reuse[0].Success || reuse[0].Error != "refresh_reuse" || reuse[0].SubjectID != "user-1" {
		t.Fatalf("unexpected reuse event: %+v", reuse[0])
	}
	if reuse[0].Metadata["revoked_chains"] != "1" {
		t.Fatalf("expected one revoked chain, got %q", reuse[0].Metadata["revoked_chains"])
	}

	missing := eventsOfType(events, "chain_not_found")
	if len(missing) != 1 || missing[0].Error != "chain_not_found" {
		t.Fatalf("expected one chain_not_found event, got %+v", missing)
	}
}

func TestAuditBindingMismatchEvent(t *testing.T) {
	sink := NewChannelSink(32)
	env := newEngineEnv(t, auditConfig(t), func(b *Builder) { b.WithAuditSink(sink) })

	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	_, _ = env.engine.Verify(context.Background(), pair.AccessToken, deviceF2)

	events := eventsOfType(collectEvents(env, sink), "binding_mismatch")
	if len(events) != 1 {
		t.Fatalf("expected one binding_mismatch event, got %d", len(events))
	}
	if events[0].Metadata["operation"] != "verify" || events[0].TokenID != pair.TokenID {
		t.Fatalf("unexpected binding event: %+v", events[0])
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	env := newEngineEnv(t, auditConfig(t), func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	rotated, err := env.engine.Rotate(ctx, pair.RefreshToken, deviceF1)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	_, _ = env.engine.Rotate(ctx, pair.RefreshToken, deviceF1)
	_, _ = env.engine.Verify(ctx, rotated.AccessToken, deviceF2)
	env.engine.Close()

	if !buf.Contains("\"event_type\":\"issue_success\"") {
		t.Fatal("expected JSON lines to contain the issue event")
	}
	for _, needle := range []string{deviceF1, deviceF2, pair.AccessToken, pair.RefreshToken, rotated.RefreshToken} {
		if buf.Contains(needle) {
			t.Fatalf("sensitive value leaked into audit output: %q", needle)
		}
	}
}

func TestAuditSlogSinkLevels(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), AuditEvent{Timestamp: time.Now(), EventType: "issue_success", Success: true, SubjectID: "user-1"})
	sink.Emit(context.Background(), AuditEvent{Timestamp: time.Now(), EventType: "refresh_reuse_detected", Error: "refresh_reuse"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %d: %s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "\"level\":\"INFO\"") || !strings.Contains(lines[0], "\"subject_id\":\"user-1\"") {
		t.Fatalf("unexpected success line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "\"level\":\"WARN\"") || !strings.Contains(lines[1], "refresh_reuse") {
		t.Fatalf("unexpected failure line: %s", lines[1])
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{err: nil, want: ""},
		{err: ErrExpired, want: "expired"},
		{err: ErrSignatureInvalid, want: "invalid_token"},
		{err: ErrBindingMismatch, want: "binding_mismatch"},
		{err: ErrReuseDetected, want: "refresh_reuse"},
		{err: unavailable(errors.New("dial tcp")), want: "backend_unavailable"},
		{err: errors.New("boom"), want: "internal_error"},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Contains(b.buf, []byte(v))
}
