package plugin

import (
	"context"
	"log/slog"
	"time"
)

// jobTask adapts a plugin-declared JobSpec into the same Name/Schedule/
// Timeout/Run shape internal/runner.Task expects, without this package
// importing internal/runner (which would create an import cycle back
// through internal/appctx, the composition root that wires both).
type jobTask struct {
	name     string
	schedule string
	timeout  time.Duration
	mgr      *Manager
	plugin   string
	handler  string
	logger   *slog.Logger
}

func (t *jobTask) Name() string           { return t.name }
func (t *jobTask) Schedule() string       { return t.schedule }
func (t *jobTask) Timeout() time.Duration { return t.timeout }

func (t *jobTask) Run(ctx context.Context) error {
	_, err := t.mgr.Call(ctx, t.plugin, t.handler, nil)
	if err != nil {
		t.logger.Warn("plugin job failed", "plugin", t.plugin, "handler", t.handler, "error", err)
		return err
	}
	t.logger.Info("plugin job completed", "plugin", t.plugin, "handler", t.handler)
	return nil
}

// PluginJobTasks builds one task per enabled job declared by a registered
// plugin's PluginManifest.Jobs. internal/appctx appends the result to the
// slice passed to runner.New so plugin-declared cron jobs run alongside
// the built-in sweepers.
func PluginJobTasks(mgr *Manager, logger *slog.Logger) []*jobTask {
	if mgr == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	var tasks []*jobTask
	for _, pj := range mgr.Jobs() {
		if !pj.JobSpec.Enabled {
			continue
		}

		timeout := 5 * time.Minute
		if pj.JobSpec.Timeout != "" {
			if d, err := time.ParseDuration(pj.JobSpec.Timeout); err == nil {
				timeout = d
			}
		}

		tasks = append(tasks, &jobTask{
			name:     "plugin." + pj.PluginName + "." + pj.JobSpec.ID,
			schedule: pj.JobSpec.Schedule,
			timeout:  timeout,
			mgr:      mgr,
			plugin:   pj.PluginName,
			handler:  pj.JobSpec.Handler,
			logger:   logger,
		})
	}
	return tasks
}
