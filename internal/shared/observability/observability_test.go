package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestMetricsServerServesRegistry(t *testing.T) {
	ResolvedPackages.WithLabelValues("core").Set(3)

	srv, err := StartMetricsServer("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("StartMetricsServer: %v", err)
	}
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `pydeps_resolved_packages{group="core"} 3`) {
		t.Fatalf("metrics output missing gauge:\n%s", body)
	}

	health, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", health.StatusCode)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "pydeps")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, span := Tracer.Start(context.Background(), "noop")
	span.End()
}
