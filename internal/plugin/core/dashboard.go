// Package core provides RustPress's own built-in dashboard widgets,
// registered through the same plugin.Plugin interface third-party plugins
// use — the platform eats its own dog food for Widgets/manifest wiring.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rustpress/rustpress-core/internal/plugin"
)

// DashboardPlugin provides the core operator-facing dashboard widgets:
// job queue throughput and installed-plugin overview.
type DashboardPlugin struct {
	host plugin.HostAPI
}

// NewDashboardPlugin creates a new dashboard plugin instance.
func NewDashboardPlugin() *DashboardPlugin {
	return &DashboardPlugin{}
}

// Register implements plugin.Plugin.
func (p *DashboardPlugin) Register() plugin.PluginManifest {
	return plugin.PluginManifest{
		Name:        "dashboard-core",
		Version:     "1.0.0",
		Description: "Core operator dashboard widgets for RustPress",
		Author:      "RustPress Team",
		License:     "Apache-2.0",
		Homepage:    "https://github.com/rustpress/rustpress-core",

		Widgets: []plugin.WidgetSpec{
			{
				ID:          "job_queue_status",
				Title:       "Job Queue",
				Description: "Pending/running/failed job counts per queue",
				Handler:     "widget_job_queue_status",
				Location:    "admin_home",
				Size:        "medium",
				Refreshable: true,
				RefreshSec:  15,
			},
			{
				ID:          "plugin_overview",
				Title:       "Plugins",
				Description: "Installed plugins and their activation state",
				Handler:     "widget_plugin_overview",
				Location:    "admin_home",
				Size:        "medium",
				Refreshable: true,
				RefreshSec:  60,
			},
		},

		MinHostVersion: "0.7.0",
		Permissions:    []string{"db:read"},
	}
}

// Init implements plugin.Plugin.
func (p *DashboardPlugin) Init(ctx context.Context, host plugin.HostAPI) error {
	p.host = host
	p.host.Log(ctx, "info", "dashboard core plugin initialized", map[string]any{"version": "1.0.0"})
	return nil
}

// Call implements plugin.Plugin.
func (p *DashboardPlugin) Call(ctx context.Context, fn string, args json.RawMessage) (json.RawMessage, error) {
	switch fn {
	case "widget_job_queue_status":
		return p.handleJobQueueStatus(ctx)
	case "widget_plugin_overview":
		return p.handlePluginOverview(ctx)
	default:
		return nil, fmt.Errorf("unknown function: %s", fn)
	}
}

// Shutdown implements plugin.Plugin.
func (p *DashboardPlugin) Shutdown(ctx context.Context) error {
	if p.host != nil {
		p.host.Log(ctx, "info", "dashboard core plugin shutting down", nil)
	}
	return nil
}

// handleJobQueueStatus renders per-queue job counts broken down by status,
// grounded on the internal/queue.Store "jobs" table this runtime already
// writes to.
func (p *DashboardPlugin) handleJobQueueStatus(ctx context.Context) (json.RawMessage, error) {
	rows, err := p.host.DBQuery(ctx, `
		SELECT
			queue,
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) as pending,
			SUM(CASE WHEN status = 'reserved' THEN 1 ELSE 0 END) as reserved,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) as completed,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed,
			COUNT(*) as total
		FROM jobs
		GROUP BY queue
		ORDER BY queue
		LIMIT 20
	`)

	var html strings.Builder

	if err != nil || len(rows) == 0 {
		noJobs := p.host.Translate(ctx, "dashboard.no_jobs")
		if noJobs == "" {
			noJobs = "No jobs queued"
		}
		html.WriteString(fmt.Sprintf(`<p class="text-sm" style="color: var(--gk-text-muted);">%s</p>`, escapeHTML(noJobs)))
	} else {
		html.WriteString(`<div class="overflow-x-auto">
			<table class="gk-table w-full text-sm">
				<thead>
					<tr>
						<th class="text-left py-2 px-3" style="color: var(--gk-text-secondary);">Queue</th>
						<th class="text-center py-2 px-2" style="color: var(--gk-text-secondary);">Pending</th>
						<th class="text-center py-2 px-2" style="color: var(--gk-text-secondary);">Running</th>
						<th class="text-center py-2 px-2" style="color: var(--gk-text-secondary);">Completed</th>
						<th class="text-center py-2 px-2" style="color: var(--gk-text-secondary);">Failed</th>
						<th class="text-center py-2 px-2" style="color: var(--gk-text-secondary);">Total</th>
					</tr>
				</thead>
				<tbody>`)

		for _, row := range rows {
			queueName := toString(row["queue"])
			pending := toInt(row["pending"])
			reserved := toInt(row["reserved"])
			completed := toInt(row["completed"])
			failed := toInt(row["failed"])
			total := toInt(row["total"])

			html.WriteString(fmt.Sprintf(`
				<tr>
					<td class="py-2 px-3 truncate" style="color: var(--gk-text-primary); max-width: 200px;">%s</td>
					<td class="py-2 px-2 text-center">%s</td>
					<td class="py-2 px-2 text-center">%s</td>
					<td class="py-2 px-2 text-center">%s</td>
					<td class="py-2 px-2 text-center">%s</td>
					<td class="py-2 px-2 text-center font-semibold" style="color: var(--gk-text-primary);">%d</td>
				</tr>`,
				escapeHTML(queueName),
				countBadge(pending, "pending"),
				countBadge(reserved, "running"),
				countBadge(completed, "completed"),
				countBadge(failed, "failed"),
				total,
			))
		}

		html.WriteString(`</tbody></table></div>`)
	}

	return json.Marshal(map[string]string{"html": html.String()})
}

// handlePluginOverview renders each registered plugin's activation state,
// grounded on the plugin_records table internal/plugin.Manager persists to.
func (p *DashboardPlugin) handlePluginOverview(ctx context.Context) (json.RawMessage, error) {
	rows, err := p.host.DBQuery(ctx, `
		SELECT name, state
		FROM plugin_records
		ORDER BY name
		LIMIT 50
	`)

	var html strings.Builder
	html.WriteString(`<ul role="list" class="-my-5 divide-y" style="border-color: var(--gk-border-default);">`)

	if err != nil || len(rows) == 0 {
		noPlugins := p.host.Translate(ctx, "dashboard.no_plugins")
		if noPlugins == "" {
			noPlugins = "No plugins installed"
		}
		html.WriteString(fmt.Sprintf(`
			<li class="py-4">
				<div class="flex items-center space-x-4">
					<div class="min-w-0 flex-1">
						<p class="truncate text-sm" style="color: var(--gk-text-muted);">%s</p>
					</div>
				</div>
			</li>`, escapeHTML(noPlugins)))
	} else {
		for _, row := range rows {
			name := toString(row["name"])
			state := toString(row["state"])

			stateStyle := "background: var(--gk-bg-elevated); color: var(--gk-text-secondary);"
			switch state {
			case "active":
				stateStyle = "background: var(--gk-success-subtle); color: var(--gk-success);"
			case "error":
				stateStyle = "background: var(--gk-error-subtle); color: var(--gk-error);"
			case "inactive", "installed":
				stateStyle = "background: var(--gk-warning-subtle); color: var(--gk-warning);"
			}

			html.WriteString(fmt.Sprintf(`
				<li class="py-4">
					<div class="flex items-center justify-between space-x-4">
						<p class="truncate text-sm font-medium" style="color: var(--gk-text-primary);">%s</p>
						<span class="inline-flex items-center px-2.5 py-0.5 rounded-full text-xs font-medium" style="%s">%s</span>
					</div>
				</li>`,
				escapeHTML(name), stateStyle, escapeHTML(state),
			))
		}
	}

	html.WriteString(`</ul>`)

	return json.Marshal(map[string]string{"html": html.String()})
}

// countBadge returns HTML for a colored count badge, always rendered (even
// for zero) to match the built-in widget style.
func countBadge(count int, kind string) string {
	var bgColor, textColor string
	switch kind {
	case "pending":
		bgColor, textColor = "var(--gk-info-subtle)", "var(--gk-info)"
	case "running":
		bgColor, textColor = "var(--gk-warning-subtle)", "var(--gk-warning)"
	case "completed":
		bgColor, textColor = "var(--gk-success-subtle)", "var(--gk-success)"
	case "failed":
		bgColor, textColor = "var(--gk-error-subtle)", "var(--gk-error)"
	default:
		bgColor, textColor = "var(--gk-bg-elevated)", "var(--gk-text-muted)"
	}

	return fmt.Sprintf(`<span class="inline-flex items-center justify-center px-2 py-0.5 rounded-full text-xs font-medium" style="background: %s; color: %s; min-width: 2rem;">%d</span>`,
		bgColor, textColor, count)
}

// Helper functions

func toString(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt(v any) int {
	if v == nil {
		return 0
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case []byte:
		// MariaDB/MySQL drivers often return numeric values as []byte
		i, _ := strconv.Atoi(string(val))
		return i
	case string:
		i, _ := strconv.Atoi(val)
		return i
	default:
		return 0
	}
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
