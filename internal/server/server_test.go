package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// stubPlugin satisfies plugin.Plugin for route-mounting tests.
type stubPlugin struct {
	info   plugin.PluginInfo
	routes []plugin.Route
}

func (p *stubPlugin) Info() plugin.PluginInfo                             { return p.info }
func (p *stubPlugin) Init(_ context.Context, _ plugin.Dependencies) error { return nil }
func (p *stubPlugin) Start(_ context.Context) error                       { return nil }
func (p *stubPlugin) Stop(_ context.Context) error                        { return nil }
func (p *stubPlugin) Routes() []plugin.Route                              { return p.routes }

// stubSource serves a fixed plugin set to the server.
type stubSource struct {
	plugins []*stubPlugin
}

func (s *stubSource) All() []plugin.Plugin {
	out := make([]plugin.Plugin, len(s.plugins))
	for i, p := range s.plugins {
		out[i] = p
	}
	return out
}

func (s *stubSource) AllRoutes() map[string][]plugin.Route {
	routes := make(map[string][]plugin.Route)
	for _, p := range s.plugins {
		if len(p.routes) > 0 {
			routes[p.info.Name] = p.routes
		}
	}
	return routes
}

func newTestServer(t *testing.T, src PluginSource, ready ReadinessChecker) *Server {
	t.Helper()
	if src == nil {
		src = &stubSource{}
	}
	return New("127.0.0.1:0", src, zap.NewNop(), ready, nil)
}

func (s *Server) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "alive" {
		t.Errorf("status = %q, want alive", body["status"])
	}
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		s := newTestServer(t, nil, func(ctx context.Context) error { return nil })
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		s := newTestServer(t, nil, func(ctx context.Context) error {
			return errors.New("database unreachable")
		})
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("nil checker defaults ready", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestHealth_versioned(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.serve(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Service != "routefleet" {
		t.Errorf("service = %q, want routefleet", body.Service)
	}
}

func TestPluginsEndpoint(t *testing.T) {
	src := &stubSource{plugins: []*stubPlugin{
		{info: plugin.PluginInfo{Name: "fleet", Version: "1.0.0", Description: "device inventory"}},
		{info: plugin.PluginInfo{Name: "pulse", Version: "1.0.0", Description: "liveness poller"}},
	}}
	s := newTestServer(t, src, nil)
	rec := s.serve(httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []PluginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("got %d plugins, want 2", len(body))
	}
	if body[0].Name != "fleet" {
		t.Errorf("first plugin = %q, want fleet", body[0].Name)
	}
}

func TestPluginRoutesMounted(t *testing.T) {
	src := &stubSource{plugins: []*stubPlugin{
		{
			info: plugin.PluginInfo{Name: "fleet", Version: "1.0.0"},
			routes: []plugin.Route{
				{Method: http.MethodGet, Path: "/devices", Handler: func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte(`[]`))
				}},
			},
		},
	}}
	s := newTestServer(t, src, nil)

	rec := s.serve(httptest.NewRequest(http.MethodGet, "/api/v1/fleet/devices", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("mounted plugin route status = %d, want 200", rec.Code)
	}

	// Wrong method on a mounted route is rejected by the mux.
	rec = s.serve(httptest.NewRequest(http.MethodDelete, "/api/v1/fleet/devices", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status = %d, want 405", rec.Code)
	}
}

func TestResponseHeaders(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rec.Header().Get("X-RouteFleet-Version") == "" {
		t.Error("missing X-RouteFleet-Version header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}
