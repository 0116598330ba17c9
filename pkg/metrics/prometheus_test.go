package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Phases(t *testing.T) {
	p := NewPrometheus("test")
	p.PhaseEntered("CHECKING_PREREQS", "PREPARING_ENV")
	p.PhaseEntered("PREPARING_ENV", "LAUNCHING_INFRA")

	expected := `
		# HELP test_phase_transitions_total Orchestrator state machine transitions
		# TYPE test_phase_transitions_total counter
		test_phase_transitions_total{from="CHECKING_PREREQS",to="PREPARING_ENV"} 1
		test_phase_transitions_total{from="PREPARING_ENV",to="LAUNCHING_INFRA"} 1
	`
	require.NoError(t, testutil.GatherAndCompare(p.Registry(), strings.NewReader(expected), "test_phase_transitions_total"))
}

func TestPrometheus_LaunchAndReadiness(t *testing.T) {
	p := NewPrometheus("test")
	p.ServiceLaunched("api", "container", nil)
	p.ServiceLaunched("web", "process", errors.New("exited"))
	for i := 0; i < 3; i++ {
		p.ReadinessAttempt("api")
	}
	p.ReadinessOutcome("api", false, 90*time.Second)
	p.Supervised(2)

	require.Equal(t, 1.0, testutil.ToFloat64(p.launches.WithLabelValues("web", "process", "error")))
	require.Equal(t, 3.0, testutil.ToFloat64(p.attempts.WithLabelValues("api")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.outcomes.WithLabelValues("api", "timeout")))
	require.Equal(t, 2.0, testutil.ToFloat64(p.supervised))

	count, err := testutil.GatherAndCount(p.Registry(), "test_readiness_wait_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus("")
	p.ServiceTerminated("web", "kill", 10*time.Second)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `stackup_service_terminations_total{how="kill",service="web"} 1`)
}

func TestPrometheus_Serve(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPrometheus("")
	require.NoError(t, p.Serve(ctx, addr))

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOrNoop(t *testing.T) {
	require.Equal(t, Noop, OrNoop(nil))
	p := NewPrometheus("x")
	require.Same(t, p, OrNoop(p).(*Prometheus))
}
