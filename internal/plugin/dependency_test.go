package plugin_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rustpress/rustpress-core/internal/plugin"
)

// depPlugin is a minimal plugin.Plugin whose manifest declares an
// arbitrary dependency/conflict graph, for exercising Enable's
// activation-order resolution.
type depPlugin struct {
	name         string
	dependencies []string
	conflicts    []string
}

func (p *depPlugin) Register() plugin.PluginManifest {
	return plugin.PluginManifest{
		Name:         p.name,
		Version:      "1.0.0",
		Dependencies: p.dependencies,
		Conflicts:    p.conflicts,
	}
}

func (p *depPlugin) Init(ctx context.Context, host plugin.HostAPI) error { return nil }
func (p *depPlugin) Call(ctx context.Context, fn string, args json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}
func (p *depPlugin) Shutdown(ctx context.Context) error { return nil }

// orderHost records, in call order, the plugin names whose state the
// manager persists as active.
type orderHost struct {
	mockHostAPI
	activated []string
}

func (h *orderHost) DBExec(ctx context.Context, query string, args ...any) (int64, error) {
	if len(args) >= 2 && args[1] == "active" {
		h.activated = append(h.activated, args[0].(string))
	}
	return 0, nil
}

func registerDisabled(t *testing.T, mgr *plugin.Manager, ctx context.Context, p *depPlugin) {
	t.Helper()
	if err := mgr.Register(ctx, p); err != nil {
		t.Fatalf("register %q: %v", p.name, err)
	}
	if err := mgr.Disable(p.name); err != nil {
		t.Fatalf("disable %q: %v", p.name, err)
	}
}

// TestEnable_ActivatesTransitiveDependenciesInOrder mirrors the spec's S3
// scenario: P depends on [Q, R], Q depends on [R], R has no deps.
// Requesting activate(P) must bring up R, then Q, then P.
func TestEnable_ActivatesTransitiveDependenciesInOrder(t *testing.T) {
	ctx := context.Background()
	host := &orderHost{}
	mgr := plugin.NewManager(host)

	r := &depPlugin{name: "r"}
	q := &depPlugin{name: "q", dependencies: []string{"r"}}
	p := &depPlugin{name: "p", dependencies: []string{"q", "r"}}

	registerDisabled(t, mgr, ctx, r)
	registerDisabled(t, mgr, ctx, q)
	registerDisabled(t, mgr, ctx, p)

	if err := mgr.Enable("p"); err != nil {
		t.Fatalf("Enable(p) failed: %v", err)
	}

	for _, name := range []string{"p", "q", "r"} {
		if !mgr.IsEnabled(name) {
			t.Errorf("expected %q to be enabled after activating p", name)
		}
	}

	if got := strings.Join(host.activated, ","); got != "r,q,p" {
		t.Errorf("activation order = %s, want r,q,p", got)
	}
}

func TestEnable_MissingDependencyBlocksActivation(t *testing.T) {
	ctx := context.Background()
	mgr := plugin.NewManager(&mockHostAPI{})

	p := &depPlugin{name: "needs-ghost", dependencies: []string{"ghost"}}
	registerDisabled(t, mgr, ctx, p)

	err := mgr.Enable("needs-ghost")
	if err == nil {
		t.Fatal("expected Enable to fail for a missing dependency")
	}
	var depErr *plugin.PluginDependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected *PluginDependencyError, got %T: %v", err, err)
	}
	if depErr.Dependency != "ghost" {
		t.Errorf("Dependency = %q, want %q", depErr.Dependency, "ghost")
	}
	if mgr.IsEnabled("needs-ghost") {
		t.Error("plugin should remain disabled when a dependency is missing")
	}
}

func TestEnable_CyclicDependencyBlocksEveryPluginInTheCycle(t *testing.T) {
	ctx := context.Background()
	mgr := plugin.NewManager(&mockHostAPI{})

	a := &depPlugin{name: "a", dependencies: []string{"b"}}
	b := &depPlugin{name: "b", dependencies: []string{"a"}}
	registerDisabled(t, mgr, ctx, a)
	registerDisabled(t, mgr, ctx, b)

	err := mgr.Enable("a")
	if err == nil {
		t.Fatal("expected Enable to fail for a dependency cycle")
	}
	var cycleErr *plugin.PluginCycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *PluginCycleError, got %T: %v", err, err)
	}
	if mgr.IsEnabled("a") || mgr.IsEnabled("b") {
		t.Error("no plugin in a cycle should activate")
	}
}

func TestEnable_ConflictWithActivePluginBlocksActivation(t *testing.T) {
	ctx := context.Background()
	mgr := plugin.NewManager(&mockHostAPI{})

	legacy := &depPlugin{name: "legacy"}
	modern := &depPlugin{name: "modern", conflicts: []string{"legacy"}}
	registerDisabled(t, mgr, ctx, legacy)
	registerDisabled(t, mgr, ctx, modern)

	if err := mgr.Enable("legacy"); err != nil {
		t.Fatalf("Enable(legacy) failed: %v", err)
	}

	err := mgr.Enable("modern")
	if err == nil {
		t.Fatal("expected Enable to fail when conflicting plugin is active")
	}
	var depErr *plugin.PluginDependencyError
	if !errors.As(err, &depErr) || depErr.Reason != "conflict" {
		t.Fatalf("expected a conflict PluginDependencyError, got %v", err)
	}
	if mgr.IsEnabled("modern") {
		t.Error("conflicting plugin should not have activated")
	}
}
