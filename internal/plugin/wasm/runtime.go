// Package wasm hosts WASM plugins compiled against the gk_* ABI shared by
// plugins/hello-wasm and plugins/test-hostapi-wasm: gk_malloc/gk_free/
// gk_register/gk_call exports, gk.host_call/gk.log imports, with values
// crossing the host/guest boundary as a packed (ptr<<32|len) uint64 into
// the module's own linear memory.
package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/rustpress/rustpress-core/internal/plugin"
)

const (
	defaultMemoryLimitPages = 512 // 64 KiB pages -> 32 MiB ceiling
	defaultCallTimeout      = 30 * time.Second
)

// loadOptions configures the sandbox a WASM module is instantiated into.
type loadOptions struct {
	memoryLimitPages uint32
	callTimeout      time.Duration
}

func defaultLoadOptions() loadOptions {
	return loadOptions{
		memoryLimitPages: defaultMemoryLimitPages,
		callTimeout:      defaultCallTimeout,
	}
}

// LoadOption configures LoadFromFile.
type LoadOption func(*loadOptions)

// WithMemoryLimit caps the module's linear memory to the given number of
// 64 KiB pages.
func WithMemoryLimit(pages uint32) LoadOption {
	return func(o *loadOptions) { o.memoryLimitPages = pages }
}

// WithCallTimeout bounds how long a single Call invocation may run before
// its context is canceled.
func WithCallTimeout(d time.Duration) LoadOption {
	return func(o *loadOptions) { o.callTimeout = d }
}

// WASMPlugin is a plugin.Plugin backed by a wazero-hosted WASM module.
type WASMPlugin struct {
	mu sync.Mutex

	name     string
	manifest plugin.PluginManifest
	host     plugin.HostAPI

	runtime wazero.Runtime
	module  api.Module

	gkMalloc   api.Function
	gkFree     api.Function
	gkRegister api.Function
	gkCall     api.Function

	callTimeout time.Duration
}

var _ plugin.Plugin = (*WASMPlugin)(nil)

// LoadFromFile compiles and instantiates the WASM module at path, wires its
// gk.host_call/gk.log imports back to this plugin, and reads its manifest
// via gk_register. The plugin is not yet usable by callers — Init must
// still be called with a HostAPI before Call is invoked.
func LoadFromFile(ctx context.Context, path string, opts ...LoadOption) (*WASMPlugin, error) {
	options := defaultLoadOptions()
	for _, opt := range opts {
		opt(&options)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm file: %w", err)
	}

	p := &WASMPlugin{
		name:        pluginNameFromPath(path),
		callTimeout: options.callTimeout,
	}

	runtimeConfig := wazero.NewRuntimeConfig().WithMemoryLimitPages(options.memoryLimitPages)
	p.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, p.runtime); err != nil {
		p.runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}

	if _, err := p.runtime.NewHostModuleBuilder("gk").
		NewFunctionBuilder().WithFunc(p.hostCall).Export("host_call").
		NewFunctionBuilder().WithFunc(p.hostLog).Export("log").
		Instantiate(ctx); err != nil {
		p.runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate host module: %w", err)
	}

	compiled, err := p.runtime.CompileModule(ctx, code)
	if err != nil {
		p.runtime.Close(ctx)
		return nil, fmt.Errorf("compile wasm module: %w", err)
	}

	module, err := p.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(p.name))
	if err != nil {
		p.runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate wasm module: %w", err)
	}
	p.module = module

	exports := map[string]*api.Function{
		"gk_malloc":   &p.gkMalloc,
		"gk_free":     &p.gkFree,
		"gk_register": &p.gkRegister,
		"gk_call":     &p.gkCall,
	}
	for name, slot := range exports {
		fn := module.ExportedFunction(name)
		if fn == nil {
			p.runtime.Close(ctx)
			return nil, fmt.Errorf("wasm module missing required export %s", name)
		}
		*slot = fn
	}

	manifest, err := p.register(ctx)
	if err != nil {
		p.runtime.Close(ctx)
		return nil, fmt.Errorf("gk_register: %w", err)
	}
	p.manifest = manifest

	return p, nil
}

func pluginNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// register invokes gk_register and parses the manifest it returns.
func (p *WASMPlugin) register(ctx context.Context) (plugin.PluginManifest, error) {
	result, err := p.gkRegister.Call(ctx)
	if err != nil {
		return plugin.PluginManifest{}, err
	}
	if len(result) == 0 {
		return plugin.PluginManifest{}, fmt.Errorf("gk_register returned no value")
	}

	ptr, length := unpack(result[0])
	defer p.free(pack(ptr, 0))

	data, ok := p.readBytes(ptr, length)
	if !ok {
		return plugin.PluginManifest{}, fmt.Errorf("could not read manifest from linear memory")
	}

	var manifest plugin.PluginManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return plugin.PluginManifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Name == "" {
		manifest.Name = p.name
	}
	return manifest, nil
}

// Register returns the manifest read at load time.
func (p *WASMPlugin) Register() plugin.PluginManifest {
	return p.manifest
}

// Init stores the HostAPI the module's gk.host_call callback dispatches to.
func (p *WASMPlugin) Init(ctx context.Context, host plugin.HostAPI) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.host = host
	return nil
}

// Call invokes the module's gk_call export with fn/args marshaled into its
// linear memory, within callTimeout.
func (p *WASMPlugin) Call(ctx context.Context, fn string, args json.RawMessage) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	fnPacked := p.writeBytes([]byte(fn))
	defer p.free(fnPacked)
	argsPacked := p.writeBytes(args)
	defer p.free(argsPacked)

	fnPtr, fnLen := unpack(fnPacked)
	argsPtr, argsLen := unpack(argsPacked)

	result, err := p.gkCall.Call(callCtx, uint64(fnPtr), uint64(fnLen), uint64(argsPtr), uint64(argsLen))
	if err != nil {
		return nil, fmt.Errorf("gk_call %s: %w", fn, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("gk_call %s: no result", fn)
	}

	resultPtr, resultLen := unpack(result[0])
	defer p.free(pack(resultPtr, 0))

	data, ok := p.readBytes(resultPtr, resultLen)
	if !ok {
		return nil, fmt.Errorf("gk_call %s: could not read result", fn)
	}
	return json.RawMessage(data), nil
}

// Shutdown tears down the module and its runtime.
func (p *WASMPlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.module != nil {
		_ = p.module.Close(ctx)
	}
	if p.runtime != nil {
		return p.runtime.Close(ctx)
	}
	return nil
}

// hostCall implements gk.host_call: the guest passes a function name and
// JSON args, both as linear-memory (ptr, len) pairs, and the result is
// returned the same way the guest returns gk_call results.
func (p *WASMPlugin) hostCall(ctx context.Context, fnPtr, fnLen, argsPtr, argsLen uint32) uint64 {
	if p.host == nil {
		return 0
	}

	fn, ok := p.readString(fnPtr, fnLen)
	if !ok {
		return 0
	}
	args, ok := p.readBytes(argsPtr, argsLen)
	if !ok {
		args = nil
	}

	result, err := p.dispatchHostCall(ctx, fn, args)
	if err != nil {
		result, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return p.writeBytes(result)
}

// hostLog implements gk.log: level 0-3 map to debug/info/warn/error.
func (p *WASMPlugin) hostLog(ctx context.Context, level, ptr, length uint32) {
	if p.host == nil {
		return
	}
	msg, ok := p.readString(ptr, length)
	if !ok {
		return
	}
	p.host.Log(ctx, logLevelName(level), msg, map[string]any{"plugin": p.name})
}

func logLevelName(level uint32) string {
	switch level {
	case 0:
		return "debug"
	case 2:
		return "warn"
	case 3:
		return "error"
	default:
		return "info"
	}
}

// dispatchHostCall routes a gk.host_call invocation to the matching HostAPI
// method, matching the method names plugins/test-hostapi-wasm exercises.
func (p *WASMPlugin) dispatchHostCall(ctx context.Context, method string, argsJSON []byte) (json.RawMessage, error) {
	switch method {
	case "db_query":
		var req struct {
			Query string `json:"query"`
			Args  []any  `json:"args"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("db_query: invalid args: %w", err)
		}
		rows, err := p.host.DBQuery(ctx, req.Query, req.Args...)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rows)

	case "db_exec":
		var req struct {
			Query string `json:"query"`
			Args  []any  `json:"args"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("db_exec: invalid args: %w", err)
		}
		affected, err := p.host.DBExec(ctx, req.Query, req.Args...)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int64{"affected": affected})

	case "cache_get":
		var req struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("cache_get: invalid args: %w", err)
		}
		value, found, err := p.host.CacheGet(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"value": value, "found": found})

	case "cache_set":
		var req struct {
			Key   string `json:"key"`
			Value []byte `json:"value"`
			TTL   int    `json:"ttl"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("cache_set: invalid args: %w", err)
		}
		if err := p.host.CacheSet(ctx, req.Key, req.Value, req.TTL); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"ok": true})

	case "http_request":
		var req struct {
			Method  string            `json:"method"`
			URL     string            `json:"url"`
			Headers map[string]string `json:"headers"`
			Body    []byte            `json:"body"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("http_request: invalid args: %w", err)
		}
		status, body, err := p.host.HTTPRequest(ctx, req.Method, req.URL, req.Headers, req.Body)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"status": status, "body": body})

	case "send_email":
		var req struct {
			To      string `json:"to"`
			Subject string `json:"subject"`
			Body    string `json:"body"`
			HTML    bool   `json:"html"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("send_email: invalid args: %w", err)
		}
		if err := p.host.SendEmail(ctx, req.To, req.Subject, req.Body, req.HTML); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"ok": true})

	case "config_get":
		var req struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("config_get: invalid args: %w", err)
		}
		value, err := p.host.ConfigGet(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"value": value})

	case "translate":
		var req struct {
			Key  string `json:"key"`
			Args []any  `json:"args"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("translate: invalid args: %w", err)
		}
		return json.Marshal(map[string]string{"value": p.host.Translate(ctx, req.Key, req.Args...)})

	case "plugin_call":
		var req struct {
			Plugin   string          `json:"plugin"`
			Function string          `json:"function"`
			Args     json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(argsJSON, &req); err != nil {
			return nil, fmt.Errorf("plugin_call: invalid args: %w", err)
		}
		return p.host.CallPlugin(ctx, req.Plugin, req.Function, req.Args)

	default:
		return nil, fmt.Errorf("unknown host function: %s", method)
	}
}

// readBytes reads length bytes at ptr from the module's linear memory.
func (p *WASMPlugin) readBytes(ptr, length uint32) ([]byte, bool) {
	if p.module == nil || length == 0 {
		return nil, false
	}
	return p.module.Memory().Read(ptr, length)
}

func (p *WASMPlugin) readString(ptr, length uint32) (string, bool) {
	b, ok := p.readBytes(ptr, length)
	if !ok {
		return "", false
	}
	return string(b), true
}

// writeBytes allocates space in the module's linear memory via gk_malloc,
// copies data into it, and returns the packed (ptr<<32|len) handle the gk_*
// ABI uses to cross the boundary. Returns 0 for empty data.
func (p *WASMPlugin) writeBytes(data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}
	if p.gkMalloc == nil || p.module == nil {
		return 0
	}

	result, err := p.gkMalloc.Call(context.Background(), uint64(len(data)))
	if err != nil || len(result) == 0 {
		return 0
	}
	ptr := uint32(result[0])
	if !p.module.Memory().Write(ptr, data) {
		return 0
	}
	return pack(ptr, uint32(len(data)))
}

func (p *WASMPlugin) writeString(s string) uint64 {
	return p.writeBytes([]byte(s))
}

// free releases a buffer previously returned by writeBytes/writeString via
// the module's gk_free export. packed's high 32 bits are the pointer; the
// low 32 bits (the length) are ignored by gk_free.
func (p *WASMPlugin) free(packed uint64) {
	if p.gkFree == nil || packed == 0 {
		return
	}
	ptr, _ := unpack(packed)
	_, _ = p.gkFree.Call(context.Background(), uint64(ptr))
}

func pack(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

func unpack(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
