package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signin-relay/internal/config"
	"signin-relay/internal/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:   5,
			IdleConnections:  2,
			MaxResponseBytes: 1024,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDo_ReturnsBodyForAnyStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t" {
			t.Errorf("Authorization = %q, want %q", r.Header.Get("Authorization"), "Bearer t")
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}))
	defer upstream.Close()

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)
	resp, err := c.Do(context.Background(), http.MethodGet, upstream.URL+"/x", http.Header{"Authorization": {"Bearer t"}}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if string(resp.Body) != `{"message":"nope"}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestDo_ResponseTooLarge(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":"` + strings.Repeat("a", 4096) + `"}`))
	}))
	defer upstream.Close()

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)
	resp, err := c.Do(context.Background(), http.MethodGet, upstream.URL, http.Header{}, nil)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("Do() error = %v, want ErrResponseTooLarge", err)
	}
	if resp != nil {
		t.Errorf("Do() returned a response alongside the error: %d bytes", len(resp.Body))
	}
}

func TestDo_ResponseAtLimit(t *testing.T) {
	body := strings.Repeat("a", 1024)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer upstream.Close()

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)
	resp, err := c.Do(context.Background(), http.MethodGet, upstream.URL, http.Header{}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(resp.Body) != body {
		t.Errorf("len(Body) = %d, want %d", len(resp.Body), len(body))
	}
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.Do(context.Background(), http.MethodGet, upstream.URL, http.Header{}, nil)
	if err == nil {
		t.Fatal("Do() expected timeout error, got nil")
	}
}

func TestDo_RefusesOffHostRedirect(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://evil.example.com/steal", http.StatusFound)
	}))
	defer upstream.Close()

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)
	_, err := c.Do(context.Background(), http.MethodGet, upstream.URL, http.Header{}, nil)
	if !errors.Is(err, ErrOffHostRedirect) {
		t.Fatalf("Do() error = %v, want ErrOffHostRedirect", err)
	}
}

func TestDo_FollowsSameHostRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"moved":true}`))
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)
	resp, err := c.Do(context.Background(), http.MethodGet, upstream.URL+"/old", http.Header{}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(resp.Body) != `{"moved":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestDo_RecordsMetrics(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	m := metrics.New()
	c := NewUpstreamClient(testConfig(), discardLogger(), m)
	if _, err := c.Do(context.Background(), http.MethodPost, upstream.URL, http.Header{}, strings.NewReader("{}")); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "signin_relay_upstream_responses_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == "POST" && labels["status_code"] == "201" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected signin_relay_upstream_responses_total with method=POST, status_code=201")
	}
}
