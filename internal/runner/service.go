package runner

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type options struct {
	logger *slog.Logger
	cron   *cron.Cron
	parser cron.Parser
}

// Option configures a Service.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// WithLogger injects a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) { o.cron = c }
}

// WithCronParser overrides the cron expression parser.
func WithCronParser(p cron.Parser) Option {
	return func(o *options) { o.parser = p }
}

// Service drives a set of Tasks on their configured cron schedules.
type Service struct {
	opts  options
	c     *cron.Cron
	tasks []Task
}

// New constructs a Service over the given tasks.
func New(tasks []Task, opts ...Option) *Service {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	c := o.cron
	if c == nil {
		c = cron.New(cron.WithParser(o.parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	}

	return &Service{opts: o, c: c, tasks: tasks}
}

// Start registers every task with the cron scheduler and starts it. It
// does not block; call Stop to halt the scheduler. Cancelling ctx only
// cancels the context passed to each run.
func (s *Service) Start(ctx context.Context) error {
	for _, t := range s.tasks {
		t := t
		_, err := s.c.AddFunc(t.Schedule(), func() { s.runOnce(ctx, t) })
		if err != nil {
			return err
		}
	}
	s.c.Start()
	return nil
}

// Stop halts the scheduler and waits for any running task invocations to
// finish.
func (s *Service) Stop() {
	stopCtx := s.c.Stop()
	<-stopCtx.Done()
}

func (s *Service) runOnce(parent context.Context, t Task) {
	ctx, cancel := context.WithTimeout(parent, t.Timeout())
	defer cancel()

	s.opts.logger.Info("runner task starting", "task", t.Name())
	if err := t.Run(ctx); err != nil {
		s.opts.logger.Error("runner task failed", "task", t.Name(), "error", err)
		return
	}
	s.opts.logger.Info("runner task finished", "task", t.Name())
}
