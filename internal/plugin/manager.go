package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rustpress/rustpress-core/internal/apierrors"
)

// LazyLoader is the interface for lazy-loading plugins on demand.
type LazyLoader interface {
	EnsureLoaded(ctx context.Context, name string) error
	Discovered() []string
}

// Manager handles plugin lifecycle: loading, registration, and invocation.
type Manager struct {
	mu         sync.RWMutex
	plugins    map[string]*registeredPlugin
	host       HostAPI
	lazyLoader LazyLoader // Optional: for lazy loading support

	// Per-plugin resource policies (name -> policy)
	policies map[string]*ResourcePolicy

	// Per-plugin sandboxed HostAPIs (name -> sandbox)
	sandboxes map[string]*SandboxedHostAPI
}

type registeredPlugin struct {
	plugin   Plugin
	manifest PluginManifest
	enabled  bool
}

// NewManager creates a plugin manager with the given host API.
func NewManager(host HostAPI) *Manager {
	return &Manager{
		plugins:   make(map[string]*registeredPlugin),
		host:      host,
		policies:  make(map[string]*ResourcePolicy),
		sandboxes: make(map[string]*SandboxedHostAPI),
	}
}

// Host returns the manager's HostAPI instance.
func (m *Manager) Host() HostAPI {
	return m.host
}

// --- Policy management ---

// getOrCreatePolicy returns the existing policy for a plugin, or the one
// stored in its plugin_records row, or else a default one. The requested
// resources a plugin declares are not consulted.
func (m *Manager) getOrCreatePolicy(name string, requested *ResourceRequest) *ResourcePolicy {
	if p, ok := m.policies[name]; ok {
		return p
	}
	
	// Try to load from database first
	ctx := context.Background()
	if policy, err := m.loadPolicy(ctx, name); err == nil {
		m.policies[name] = policy
		return policy
	}
	
	// Create default policy if not found in database
	policy := DefaultResourcePolicy(name)
	m.policies[name] = &policy
	return &policy
}

// SetPolicy sets the resource policy for a plugin (admin override).
// Policy changes take effect immediately and are persisted to the database.
func (m *Manager) SetPolicy(name string, policy ResourcePolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	policy.PluginName = name
	m.policies[name] = &policy

	// Persist policy to database
	ctx := context.Background()
	if err := m.savePolicy(ctx, name, &policy); err != nil {
		// Log but don't fail - in-memory state is still correct
		fmt.Printf("Warning: failed to persist plugin policy for %s: %v\n", name, err)
	}

	// If plugin is already loaded, update its sandbox policy immediately
	if sandbox, ok := m.sandboxes[name]; ok {
		sandbox.UpdatePolicy(policy)
	}
}

// GetPolicy returns the current policy for a plugin.
func (m *Manager) GetPolicy(name string) (ResourcePolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[name]
	if !ok {
		return ResourcePolicy{}, false
	}
	return *p, true
}

// AllPolicies returns all current policies.
func (m *Manager) AllPolicies() map[string]ResourcePolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]ResourcePolicy, len(m.policies))
	for k, v := range m.policies {
		result[k] = *v
	}
	return result
}

// PluginStats returns resource usage stats for a plugin.
func (m *Manager) PluginStats(name string) (StatsSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sandboxes[name]
	if !ok {
		return StatsSnapshot{}, false
	}
	return s.Stats(), true
}

// AllPluginStats returns resource usage stats for all plugins.
func (m *Manager) AllPluginStats() []StatsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]StatsSnapshot, 0, len(m.sandboxes))
	for _, s := range m.sandboxes {
		result = append(result, s.Stats())
	}
	return result
}

// defaultDisabledPlugins lists plugins that are disabled by default.
// These are development/example plugins not intended for production use.
// They can still be enabled via the admin UI or API.
var defaultDisabledPlugins = map[string]bool{
	"hello":        true,
	"hello-wasm":   true,
	"hello-grpc":   true,
	"test-hostapi": true,
}

// plugin_records is the durable Plugin Record store named by spec §3: one
// row per plugin name holding its lifecycle state and resource policy.
// installed|active|inactive|error tracks the record's state column; this
// package only distinguishes active (enabled) from inactive (disabled).

// loadPluginEnabled checks a plugin's persisted state in plugin_records.
// A missing row (no DB, mock DB, fresh install) defaults to enabled,
// except for the development/example plugins in defaultDisabledPlugins.
func (m *Manager) loadPluginEnabled(ctx context.Context, name string) bool {
	if m.host == nil {
		return !defaultDisabledPlugins[name]
	}

	rows, err := m.host.DBQuery(ctx, `SELECT state FROM plugin_records WHERE name = ? LIMIT 1`, name)
	if err == nil && len(rows) > 0 {
		if state, ok := rows[0]["state"].(string); ok {
			return state == "active"
		}
	}

	return !defaultDisabledPlugins[name]
}

// seedDefaultDisabled inserts an inactive plugin_records row for
// development/example plugins on first registration, if no row exists
// yet. No-op for non-example plugins, when the lookup fails, or when a row
// already exists.
func (m *Manager) seedDefaultDisabled(ctx context.Context, name string) {
	if m.host == nil || !defaultDisabledPlugins[name] {
		return
	}

	rows, err := m.host.DBQuery(ctx, `SELECT 1 FROM plugin_records WHERE name = ? LIMIT 1`, name)
	if err != nil || len(rows) > 0 {
		return // DB error or row already exists
	}

	m.host.DBExec(ctx, `
		INSERT INTO plugin_records (name, state, settings, resource_policy)
		VALUES (?, 'inactive', '{}', '{}')
	`, name)
}

// savePluginEnabled persists a plugin's active/inactive state.
func (m *Manager) savePluginEnabled(ctx context.Context, name string, enabled bool) error {
	if m.host == nil {
		return nil // No host API, can't persist
	}

	state := "active"
	if !enabled {
		state = "inactive"
	}

	query := `
		INSERT INTO plugin_records (name, state, settings, resource_policy)
		VALUES (?, ?, '{}', '{}')
		ON DUPLICATE KEY UPDATE state = ?
	`
	_, err := m.host.DBExec(ctx, query, name, state, state)
	return err
}

// SetLazyLoader sets the lazy loader for on-demand plugin loading.
func (m *Manager) SetLazyLoader(loader LazyLoader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lazyLoader = loader
}

// Discovered returns the names of discovered but not necessarily loaded plugins.
func (m *Manager) Discovered() []string {
	if m.lazyLoader == nil {
		return nil
	}
	return m.lazyLoader.Discovered()
}

// Register loads and initializes a plugin.
func (m *Manager) Register(ctx context.Context, p Plugin) error {
	manifest := p.Register()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[manifest.Name]; exists {
		return fmt.Errorf("plugin %q already registered", manifest.Name)
	}

	if err := ValidateSettings(manifest.SettingsSchema, manifest.DefaultSettings); err != nil {
		return fmt.Errorf("plugin %q manifest: %w", manifest.Name, err)
	}

	// Create sandboxed HostAPI for this plugin
	policy := m.getOrCreatePolicy(manifest.Name, manifest.Resources)
	sandbox := NewSandboxedHostAPI(m.host, manifest.Name, *policy)
	m.sandboxes[manifest.Name] = sandbox

	// Initialize the plugin with sandboxed host API access
	if err := p.Init(ctx, sandbox); err != nil {
		delete(m.sandboxes, manifest.Name)
		return fmt.Errorf("plugin %q init failed: %w", manifest.Name, err)
	}

	// Seed default-disabled state for example plugins on first registration
	m.seedDefaultDisabled(ctx, manifest.Name)

	// Check if this plugin is enabled in plugin_records
	isEnabled := m.loadPluginEnabled(ctx, manifest.Name)

	m.plugins[manifest.Name] = &registeredPlugin{
		plugin:   p,
		manifest: manifest,
		enabled:  isEnabled,
	}

	// Register plugin error codes if provided
	if len(manifest.ErrorCodes) > 0 {
		m.loadPluginErrorCodes(manifest.Name, manifest.ErrorCodes)
	}

	return nil
}

// loadPluginErrorCodes registers plugin-provided API error codes.
func (m *Manager) loadPluginErrorCodes(pluginName string, codes []ErrorCodeSpec) {
	for _, spec := range codes {
		apierrors.Registry.Register(apierrors.ErrorCode{
			Code:       pluginName + ":" + spec.Code,
			Message:    spec.Message,
			HTTPStatus: spec.HTTPStatus,
		})
	}
}

// Unregister shuts down and removes a plugin.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rp, exists := m.plugins[name]
	if !exists {
		return fmt.Errorf("plugin %q not found", name)
	}

	if err := rp.plugin.Shutdown(ctx); err != nil {
		return fmt.Errorf("plugin %q shutdown failed: %w", name, err)
	}

	delete(m.plugins, name)
	delete(m.sandboxes, name)
	// Note: policy is preserved across reloads so admin settings persist
	return nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rp, exists := m.plugins[name]
	if !exists || !rp.enabled {
		return nil, false
	}
	return rp.plugin, true
}

// PluginNotFoundError is returned when a plugin dependency is missing.
type PluginNotFoundError struct {
	PluginName   string // The missing plugin
	CallerPlugin string // The plugin that tried to call it (if known)
	Function     string // The function that was called
}

func (e *PluginNotFoundError) Error() string {
	if e.CallerPlugin != "" {
		return fmt.Sprintf("plugin %q not found (required by %q to call %q)", 
			e.PluginName, e.CallerPlugin, e.Function)
	}
	return fmt.Sprintf("plugin %q not found", e.PluginName)
}

// PluginDisabledError is returned when trying to call a disabled plugin.
type PluginDisabledError struct {
	PluginName   string
	CallerPlugin string
}

func (e *PluginDisabledError) Error() string {
	if e.CallerPlugin != "" {
		return fmt.Sprintf("plugin %q is disabled (required by %q)", e.PluginName, e.CallerPlugin)
	}
	return fmt.Sprintf("plugin %q is disabled", e.PluginName)
}

// Call invokes a function on a specific plugin.
// If lazy loading is enabled and the plugin isn't loaded yet, it will be loaded first.
func (m *Manager) Call(ctx context.Context, pluginName, fn string, args []byte) ([]byte, error) {
	m.mu.RLock()
	rp, exists := m.plugins[pluginName]
	lazyLoader := m.lazyLoader
	m.mu.RUnlock()

	// Try lazy loading if plugin not found
	if !exists && lazyLoader != nil {
		if err := lazyLoader.EnsureLoaded(ctx, pluginName); err != nil {
			return nil, &PluginNotFoundError{PluginName: pluginName, Function: fn}
		}
		// Re-check after lazy load
		m.mu.RLock()
		rp, exists = m.plugins[pluginName]
		m.mu.RUnlock()
	}

	if !exists {
		return nil, &PluginNotFoundError{PluginName: pluginName, Function: fn}
	}
	if !rp.enabled {
		return nil, &PluginDisabledError{PluginName: pluginName}
	}

	return rp.plugin.Call(ctx, fn, args)
}

// CallFrom invokes a function on a plugin, with caller context for better errors.
// If lazy loading is enabled and the plugin isn't loaded yet, it will be loaded first.
func (m *Manager) CallFrom(ctx context.Context, callerPlugin, targetPlugin, fn string, args []byte) ([]byte, error) {
	m.mu.RLock()
	rp, exists := m.plugins[targetPlugin]
	lazyLoader := m.lazyLoader
	m.mu.RUnlock()

	// Try lazy loading if plugin not found
	if !exists && lazyLoader != nil {
		if err := lazyLoader.EnsureLoaded(ctx, targetPlugin); err != nil {
			return nil, &PluginNotFoundError{
				PluginName:   targetPlugin,
				CallerPlugin: callerPlugin,
				Function:     fn,
			}
		}
		// Re-check after lazy load
		m.mu.RLock()
		rp, exists = m.plugins[targetPlugin]
		m.mu.RUnlock()
	}

	if !exists {
		return nil, &PluginNotFoundError{
			PluginName:   targetPlugin,
			CallerPlugin: callerPlugin,
			Function:     fn,
		}
	}
	if !rp.enabled {
		return nil, &PluginDisabledError{
			PluginName:   targetPlugin,
			CallerPlugin: callerPlugin,
		}
	}

	return rp.plugin.Call(ctx, fn, args)
}

// ReplacePlugin atomically replaces an existing plugin with a new one.
// This prevents race conditions during hot reload.
func (m *Manager) ReplacePlugin(ctx context.Context, oldName string, newPlugin Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check if old plugin exists
	oldRp, exists := m.plugins[oldName]
	if !exists {
		return fmt.Errorf("plugin %q not found for replacement", oldName)
	}

	newManifest := newPlugin.Register()
	if newManifest.Name != oldName {
		return fmt.Errorf("new plugin name %q doesn't match old name %q", newManifest.Name, oldName)
	}

	// Initialize new plugin with existing policy and settings
	policy := m.getOrCreatePolicy(newManifest.Name, newManifest.Resources)
	sandbox := NewSandboxedHostAPI(m.host, newManifest.Name, *policy)

	if err := newPlugin.Init(ctx, sandbox); err != nil {
		return fmt.Errorf("new plugin %q init failed: %w", newManifest.Name, err)
	}

	// Shutdown old plugin
	if err := oldRp.plugin.Shutdown(ctx); err != nil {
		// Log error but continue - we want to replace it anyway
		fmt.Printf("Warning: old plugin %q shutdown error: %v\n", oldName, err)
	}

	// Atomically replace the plugin
	m.plugins[oldName] = &registeredPlugin{
		plugin:   newPlugin,
		manifest: newManifest,
		enabled:  oldRp.enabled, // Preserve enabled state
	}
	m.sandboxes[oldName] = sandbox

	return nil
}

// List returns all registered plugin manifests.
func (m *Manager) List() []PluginManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	manifests := make([]PluginManifest, 0, len(m.plugins))
	for _, rp := range m.plugins {
		manifests = append(manifests, rp.manifest)
	}
	return manifests
}

// IsEnabled returns whether a plugin is enabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rp, exists := m.plugins[name]
	if !exists {
		return false
	}
	return rp.enabled
}

// PluginDependencyError is returned when activation is blocked by a missing
// dependency or an active conflicting plugin (spec's Plugin Record
// invariants: an active plugin may only depend on active plugins, and a
// plugin declaring a conflict with a currently-active plugin cannot
// itself activate).
type PluginDependencyError struct {
	PluginName string
	Dependency string
	Reason     string // "missing" or "conflict"
}

func (e *PluginDependencyError) Error() string {
	if e.Reason == "conflict" {
		return fmt.Sprintf("plugin %q conflicts with active plugin %q", e.PluginName, e.Dependency)
	}
	return fmt.Sprintf("plugin %q depends on %q, which is not registered", e.PluginName, e.Dependency)
}

// PluginCycleError is returned when a dependency cycle is found during
// activation; no plugin in the cycle activates.
type PluginCycleError struct {
	Cycle []string
}

func (e *PluginCycleError) Error() string {
	return fmt.Sprintf("plugin dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// resolveActivationOrder returns the plugins that must activate, in
// dependency-first order, to bring name into the active set. Caller must
// hold m.mu. Depth-first with gray/black marking detects cycles; conflicts
// are checked against plugins already enabled or already placed earlier in
// the same batch.
func (m *Manager) resolveActivationOrder(name string) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	state := make(map[string]int)
	var order []string

	activeOrScheduled := func(n string) bool {
		if rp, ok := m.plugins[n]; ok && rp.enabled {
			return true
		}
		for _, o := range order {
			if o == n {
				return true
			}
		}
		return false
	}

	var visit func(n string, path []string) error
	visit = func(n string, path []string) error {
		switch state[n] {
		case black:
			return nil
		case gray:
			return &PluginCycleError{Cycle: append(append([]string{}, path...), n)}
		}
		state[n] = gray

		rp, ok := m.plugins[n]
		if !ok {
			return &PluginDependencyError{PluginName: n, Dependency: n, Reason: "missing"}
		}

		for _, dep := range rp.manifest.Dependencies {
			if _, ok := m.plugins[dep]; !ok {
				return &PluginDependencyError{PluginName: n, Dependency: dep, Reason: "missing"}
			}
			if err := visit(dep, append(path, n)); err != nil {
				return err
			}
		}

		for _, conflict := range rp.manifest.Conflicts {
			if activeOrScheduled(conflict) {
				return &PluginDependencyError{PluginName: n, Dependency: conflict, Reason: "conflict"}
			}
		}

		state[n] = black
		order = append(order, n)
		return nil
	}

	if err := visit(name, nil); err != nil {
		return nil, err
	}
	return order, nil
}

// Enable activates a plugin and, transitively, every dependency it needs
// that isn't already active (spec §4.8's activation order, e.g. P deps
// [Q, R], Q deps [R] activates R, then Q, then P). If the plugin is
// lazy-loaded and not yet registered, it will be loaded first. A missing
// dependency or an active conflict blocks the entire batch: nothing in it
// activates.
func (m *Manager) Enable(name string) error {
	ctx := context.Background()

	m.mu.Lock()
	_, exists := m.plugins[name]
	m.mu.Unlock()

	// Try lazy loading if not registered
	if !exists && m.lazyLoader != nil {
		if err := m.lazyLoader.EnsureLoaded(ctx, name); err != nil {
			return fmt.Errorf("plugin %q not found", name)
		}
		m.mu.Lock()
		_, exists = m.plugins[name]
		m.mu.Unlock()
	}
	if !exists {
		return fmt.Errorf("plugin %q not found", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.resolveActivationOrder(name)
	if err != nil {
		return err
	}

	for _, n := range order {
		rp := m.plugins[n]
		if rp.enabled {
			continue
		}
		rp.enabled = true
		if err := m.savePluginEnabled(ctx, n, true); err != nil {
			// Log but don't fail - in-memory state is still correct
			fmt.Printf("Warning: failed to save plugin state: %v\n", err)
		}
	}
	return nil
}

// Disable disables a plugin without unloading it.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rp, exists := m.plugins[name]
	if !exists {
		return fmt.Errorf("plugin %q not found", name)
	}
	rp.enabled = false

	// Persist state to plugin_records
	ctx := context.Background()
	if err := m.savePluginEnabled(ctx, name, false); err != nil {
		// Log but don't fail - in-memory state is still correct
		fmt.Printf("Warning: failed to save plugin state: %v\n", err)
	}
	return nil
}

// Routes returns all routes from all enabled plugins.
func (m *Manager) Routes() []PluginRoute {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var routes []PluginRoute
	for name, rp := range m.plugins {
		if !rp.enabled {
			continue
		}
		for _, r := range rp.manifest.Routes {
			routes = append(routes, PluginRoute{
				PluginName: name,
				RouteSpec:  r,
			})
		}
	}
	return routes
}

// PluginRoute pairs a route spec with its plugin name.
type PluginRoute struct {
	PluginName string
	RouteSpec  RouteSpec
}

// MenuItems returns all menu items from all enabled plugins.
func (m *Manager) MenuItems(location string) []PluginMenuItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []PluginMenuItem
	for name, rp := range m.plugins {
		if !rp.enabled {
			continue
		}
		for _, mi := range rp.manifest.MenuItems {
			if mi.Location == location {
				items = append(items, PluginMenuItem{
					PluginName:   name,
					MenuItemSpec: mi,
				})
			}
		}
	}
	return items
}

// PluginMenuItem pairs a menu item spec with its plugin name.
type PluginMenuItem struct {
	PluginName string
	MenuItemSpec
}

// Widgets returns all widgets from all enabled plugins for a location.
func (m *Manager) Widgets(location string) []PluginWidget {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var widgets []PluginWidget
	for name, rp := range m.plugins {
		if !rp.enabled {
			continue
		}
		for _, w := range rp.manifest.Widgets {
			if w.Location == location {
				widgets = append(widgets, PluginWidget{
					PluginName: name,
					WidgetSpec: w,
				})
			}
		}
	}
	return widgets
}

// PluginWidget pairs a widget spec with its plugin name.
type PluginWidget struct {
	PluginName string
	WidgetSpec
}

// AllWidgets returns widgets from all plugins (including lazy-loaded) for a location.
// This triggers lazy loading for all discovered plugins to ensure complete widget list.
func (m *Manager) AllWidgets(location string) []PluginWidget {
	// First, trigger lazy loading for all discovered plugins
	if m.lazyLoader != nil {
		ctx := context.Background()
		for _, name := range m.lazyLoader.Discovered() {
			// Try to load each discovered plugin (errors are ignored)
			_ = m.lazyLoader.EnsureLoaded(ctx, name)
		}
	}

	// Now return widgets from all loaded plugins
	return m.Widgets(location)
}

// Jobs returns all jobs from all enabled plugins.
func (m *Manager) Jobs() []PluginJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []PluginJob
	for name, rp := range m.plugins {
		if !rp.enabled {
			continue
		}
		for _, j := range rp.manifest.Jobs {
			jobs = append(jobs, PluginJob{
				PluginName: name,
				JobSpec:    j,
			})
		}
	}
	return jobs
}

// PluginJob pairs a job spec with its plugin name.
type PluginJob struct {
	PluginName string
	JobSpec
}

// loadPolicy loads a plugin's resource policy from its plugin_records row.
func (m *Manager) loadPolicy(ctx context.Context, name string) (*ResourcePolicy, error) {
	if m.host == nil {
		return nil, fmt.Errorf("no host API available")
	}

	rows, err := m.host.DBQuery(ctx, `SELECT resource_policy FROM plugin_records WHERE name = ? LIMIT 1`, name)
	if err == nil && len(rows) > 0 {
		if jsonStr, ok := rows[0]["resource_policy"].(string); ok && jsonStr != "" && jsonStr != "{}" {
			var policy ResourcePolicy
			if err := json.Unmarshal([]byte(jsonStr), &policy); err != nil {
				return nil, fmt.Errorf("invalid policy JSON in database: %w", err)
			}
			return &policy, nil
		}
	}

	return nil, fmt.Errorf("policy not found in database")
}

// savePolicy persists a plugin's resource policy to its plugin_records row.
func (m *Manager) savePolicy(ctx context.Context, name string, policy *ResourcePolicy) error {
	if m.host == nil {
		return nil // No host API, can't persist
	}

	jsonData, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to serialize policy: %w", err)
	}
	jsonStr := string(jsonData)

	query := `
		INSERT INTO plugin_records (name, state, settings, resource_policy)
		VALUES (?, 'inactive', '{}', ?)
		ON DUPLICATE KEY UPDATE resource_policy = ?
	`
	_, err = m.host.DBExec(ctx, query, name, jsonStr, jsonStr)
	return err
}

// HiddenMenuItems returns all menu item IDs that enabled plugins want hidden.
func (m *Manager) HiddenMenuItems() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []string
	for _, rp := range m.plugins {
		if !rp.enabled {
			continue
		}
		items = append(items, rp.manifest.HideMenuItems...)
	}
	return items
}

// LandingPage returns the landing page URL from the first enabled plugin that declares one.
// If no plugin sets a landing page, returns empty string.
func (m *Manager) LandingPage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rp := range m.plugins {
		if !rp.enabled {
			continue
		}
		if rp.manifest.LandingPage != "" {
			return rp.manifest.LandingPage
		}
	}
	return ""
}

// ShutdownAll shuts down all plugins gracefully.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, rp := range m.plugins {
		if err := rp.plugin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin %q: %w", name, err))
		}
	}

	m.plugins = make(map[string]*registeredPlugin)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
