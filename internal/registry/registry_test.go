package registry

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// fakePlugin is a minimal plugin for exercising the registry.
type fakePlugin struct {
	info     plugin.PluginInfo
	initErr  error
	startErr error
	stopErr  error
	events   *[]string // shared lifecycle log, entries like "init:fleet"
}

func newFakePlugin(name string, deps ...string) *fakePlugin {
	return &fakePlugin{
		info: plugin.PluginInfo{
			Name:         name,
			Version:      "1.0.0",
			Description:  "fake plugin " + name,
			Dependencies: deps,
			APIVersion:   plugin.APIVersionCurrent,
		},
	}
}

func (p *fakePlugin) record(phase string) {
	if p.events != nil {
		*p.events = append(*p.events, phase+":"+p.info.Name)
	}
}

func (p *fakePlugin) Info() plugin.PluginInfo { return p.info }

func (p *fakePlugin) Init(_ context.Context, _ plugin.Dependencies) error {
	p.record("init")
	return p.initErr
}

func (p *fakePlugin) Start(_ context.Context) error {
	p.record("start")
	return p.startErr
}

func (p *fakePlugin) Stop(_ context.Context) error {
	p.record("stop")
	return p.stopErr
}

// routePlugin also serves HTTP routes.
type routePlugin struct {
	fakePlugin
	routes []plugin.Route
}

func (p *routePlugin) Routes() []plugin.Route { return p.routes }

func testLogger() *zap.Logger { return zap.NewNop() }

func noDeps() func(string) plugin.Dependencies {
	return func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: zap.NewNop().Named(name)}
	}
}

// indexOf returns the position of want in entries, or -1.
func indexOf(entries []string, want string) int {
	for i, e := range entries {
		if e == want {
			return i
		}
	}
	return -1
}

func TestRegister(t *testing.T) {
	reg := New(testLogger())

	p := newFakePlugin("fleet")
	if err := reg.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(p); err == nil {
		t.Fatal("Register() expected error for duplicate, got nil")
	}
}

func TestRegister_emptyName(t *testing.T) {
	reg := New(testLogger())
	p := &fakePlugin{info: plugin.PluginInfo{Name: ""}}
	if err := reg.Register(p); err == nil {
		t.Fatal("Register() expected error for empty name, got nil")
	}
}

func TestValidate_dependencyOrder(t *testing.T) {
	reg := New(testLogger())
	var events []string

	// runner and pulse both depend on fleet; sms depends on runner.
	fleet := newFakePlugin("fleet")
	runner := newFakePlugin("runner", "fleet")
	pulse := newFakePlugin("pulse", "fleet")
	sms := newFakePlugin("sms", "runner")
	for _, p := range []*fakePlugin{fleet, runner, pulse, sms} {
		p.events = &events
		if err := reg.Register(p); err != nil {
			t.Fatalf("Register(%s): %v", p.info.Name, err)
		}
	}

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := reg.InitAll(context.Background(), noDeps()); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}

	// Every plugin initializes after everything it depends on.
	checks := [][2]string{
		{"init:fleet", "init:runner"},
		{"init:fleet", "init:pulse"},
		{"init:runner", "init:sms"},
	}
	for _, c := range checks {
		if indexOf(events, c[0]) > indexOf(events, c[1]) {
			t.Errorf("expected %s before %s, got order %v", c[0], c[1], events)
		}
	}
}

func TestValidate_missingDependency(t *testing.T) {
	t.Run("required fails validation", func(t *testing.T) {
		reg := New(testLogger())
		p := newFakePlugin("runner", "fleet")
		p.info.Required = true
		reg.Register(p)

		if err := reg.Validate(); err == nil {
			t.Fatal("expected error for required plugin with missing dependency")
		}
	})

	t.Run("optional is disabled", func(t *testing.T) {
		reg := New(testLogger())
		reg.Register(newFakePlugin("runner", "fleet"))

		if err := reg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !reg.IsDisabled("runner") {
			t.Error("expected runner to be disabled")
		}
	})
}

func TestValidate_cascadeDisable(t *testing.T) {
	reg := New(testLogger())

	// sms -> runner -> fleet, and fleet's dependency doesn't exist.
	reg.Register(newFakePlugin("fleet", "missing"))
	reg.Register(newFakePlugin("runner", "fleet"))
	reg.Register(newFakePlugin("sms", "runner"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	for _, name := range []string{"fleet", "runner", "sms"} {
		if !reg.IsDisabled(name) {
			t.Errorf("expected %s to be disabled", name)
		}
	}
}

func TestValidate_cycle(t *testing.T) {
	reg := New(testLogger())
	reg.Register(newFakePlugin("a", "b"))
	reg.Register(newFakePlugin("b", "a"))

	if err := reg.Validate(); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestValidate_apiVersion(t *testing.T) {
	t.Run("too new optional disabled", func(t *testing.T) {
		reg := New(testLogger())
		p := newFakePlugin("future")
		p.info.APIVersion = plugin.APIVersionCurrent + 1
		reg.Register(p)

		if err := reg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !reg.IsDisabled("future") {
			t.Error("expected incompatible plugin to be disabled")
		}
	})

	t.Run("too new required fails", func(t *testing.T) {
		reg := New(testLogger())
		p := newFakePlugin("future")
		p.info.APIVersion = plugin.APIVersionCurrent + 1
		p.info.Required = true
		reg.Register(p)

		if err := reg.Validate(); err == nil {
			t.Fatal("expected error for required incompatible plugin")
		}
	})
}

func TestInitAll_failure(t *testing.T) {
	t.Run("required init error aborts", func(t *testing.T) {
		reg := New(testLogger())
		p := newFakePlugin("fleet")
		p.info.Required = true
		p.initErr = errors.New("boom")
		reg.Register(p)
		reg.Validate()

		if err := reg.InitAll(context.Background(), noDeps()); err == nil {
			t.Fatal("expected error from required plugin init failure")
		}
	})

	t.Run("optional init error disables", func(t *testing.T) {
		reg := New(testLogger())
		p := newFakePlugin("metrics")
		p.initErr = errors.New("boom")
		reg.Register(p)
		reg.Validate()

		if err := reg.InitAll(context.Background(), noDeps()); err != nil {
			t.Fatalf("InitAll() error = %v", err)
		}
		if !reg.IsDisabled("metrics") {
			t.Error("expected failing optional plugin to be disabled")
		}
	})
}

func TestStartAll_optionalFailureDisables(t *testing.T) {
	reg := New(testLogger())
	p := newFakePlugin("pulse")
	p.startErr = errors.New("no probe target")
	reg.Register(p)
	reg.Register(newFakePlugin("fleet"))
	reg.Validate()
	reg.InitAll(context.Background(), noDeps())

	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if !reg.IsDisabled("pulse") {
		t.Error("expected pulse to be disabled after start failure")
	}
	if reg.IsDisabled("fleet") {
		t.Error("fleet should remain active")
	}
}

func TestStopAll_reverseOrder(t *testing.T) {
	reg := New(testLogger())
	var events []string

	fleet := newFakePlugin("fleet")
	runner := newFakePlugin("runner", "fleet")
	fleet.events = &events
	runner.events = &events
	reg.Register(fleet)
	reg.Register(runner)
	reg.Validate()
	reg.InitAll(context.Background(), noDeps())
	reg.StartAll(context.Background())

	events = events[:0]
	reg.StopAll(context.Background())

	if indexOf(events, "stop:runner") > indexOf(events, "stop:fleet") {
		t.Errorf("expected runner to stop before fleet, got %v", events)
	}
}

func TestGet_disabledHidden(t *testing.T) {
	reg := New(testLogger())
	reg.Register(newFakePlugin("runner", "fleet")) // fleet never registered
	reg.Validate()

	if _, ok := reg.Get("runner"); ok {
		t.Error("Get() should not return disabled plugins")
	}
	if _, ok := reg.Resolve("runner"); ok {
		t.Error("Resolve() should not return disabled plugins")
	}
}

func TestAllRoutes(t *testing.T) {
	reg := New(testLogger())

	rp := &routePlugin{
		fakePlugin: *newFakePlugin("fleet"),
		routes: []plugin.Route{
			{Method: http.MethodGet, Path: "/api/v1/devices", Handler: func(w http.ResponseWriter, r *http.Request) {}},
		},
	}
	reg.Register(rp)
	reg.Register(newFakePlugin("metrics"))
	reg.Validate()

	routes := reg.AllRoutes()
	if len(routes["fleet"]) != 1 {
		t.Errorf("expected 1 fleet route, got %d", len(routes["fleet"]))
	}
	if _, ok := routes["metrics"]; ok {
		t.Error("plugin without HTTPProvider should not appear in AllRoutes")
	}
}

func TestResolveByRole(t *testing.T) {
	reg := New(testLogger())

	notifier := newFakePlugin("sms")
	notifier.info.Roles = []string{"notifier"}
	reg.Register(notifier)
	reg.Register(newFakePlugin("fleet"))
	reg.Validate()

	got := reg.ResolveByRole("notifier")
	if len(got) != 1 || got[0].Info().Name != "sms" {
		t.Errorf("ResolveByRole(notifier) = %v plugins, want [sms]", len(got))
	}
	if len(reg.ResolveByRole("storage")) != 0 {
		t.Error("expected no plugins for unknown role")
	}
}
