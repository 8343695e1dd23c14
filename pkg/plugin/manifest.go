package plugin

// PluginManifest represents a plugin.toml manifest file, per spec §4.6 /
// §6. This is the universal plugin descriptor used by both the loader and
// packaging systems.
type PluginManifest struct {
	Name        string           `toml:"name"                   json:"name"`
	Version     string           `toml:"version"                json:"version"`
	Runtime     string           `toml:"runtime"                json:"runtime"`               // "wasm", "grpc", or "template"
	Binary      string           `toml:"binary"                 json:"binary,omitempty"`       // For grpc runtime: relative path to executable
	WASMFile    string           `toml:"wasm,omitempty"         json:"wasm,omitempty"`         // For wasm runtime: defaults to name.wasm
	Description string           `toml:"description,omitempty"  json:"description,omitempty"`
	Author      string           `toml:"author,omitempty"       json:"author,omitempty"`
	License     string           `toml:"license,omitempty"      json:"license,omitempty"`
	Homepage    string           `toml:"homepage,omitempty"     json:"homepage,omitempty"`
	Resources   *ResourceRequest `toml:"resources,omitempty"    json:"resources,omitempty"`
	Dependencies []string        `toml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Conflicts    []string        `toml:"conflicts,omitempty"    json:"conflicts,omitempty"`
}
