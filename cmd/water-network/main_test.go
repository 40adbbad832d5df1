package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diwise/water-network/internal/pkg/application"
	"github.com/diwise/water-network/internal/pkg/application/webevents"
	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestSetup(t *testing.T) {
	r, is := setupTest(t)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodGet, "/health", nil)

	is.Equal(resp.StatusCode, http.StatusNoContent)
}

func TestThatGetUnknownGateWallReturns404(t *testing.T) {
	r, is := setupTest(t)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodGet, "/api/v0/gatewalls/nosuchgatewall", nil)

	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestThatSeededDemoNetworkIsServed(t *testing.T) {
	r, is := setupTest(t)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, body := testRequest(is, server, http.MethodGet, "/api/v0/devices/OHSR001", nil)

	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, `"id":"OHSR001"`))
}

func TestThatMetricsAreExposed(t *testing.T) {
	r, is := setupTest(t)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, body := testRequest(is, server, http.MethodGet, "/metrics", nil)

	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, "waternetwork_gatewalls 2"))
}

func TestConfigurationDefaults(t *testing.T) {
	is := is.New(t)

	cfg := parseConfiguration(zerolog.Nop(), strings.NewReader("simulation:\n  interval: 1m\n"))

	is.Equal(cfg.Simulation.Interval, time.Minute)
	is.True(cfg.Simulation.BatteryDrain > 0)
}

func setupTest(t *testing.T) (*chi.Mux, *is.I) {
	is := is.New(t)
	ctx := context.Background()

	app := application.New(nil, nil, nil)
	is.NoErr(application.SeedDemo(ctx, app))

	liveView := webevents.New()
	t.Cleanup(liveView.Shutdown)

	return setupRouter(ctx, app, liveView), is
}

func testRequest(is *is.I, ts *httptest.Server, method, path string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, ts.URL+path, body)
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	respBody, _ := io.ReadAll(resp.Body)
	defer resp.Body.Close()

	return resp, string(respBody)
}
