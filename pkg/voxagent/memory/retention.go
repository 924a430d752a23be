// retention.go implements the scheduled retention pruner for long-term
// storage. Old low-importance records are deleted on a cron schedule;
// anything at or above the importance floor is kept indefinitely.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionPolicy configures how long low-importance records are kept.
type RetentionPolicy struct {
	// Enabled turns the pruner on. Off by default: deleting memory is
	// destructive and must be opted into.
	Enabled bool `yaml:"enabled"`

	// MaxAgeDays is the age after which prunable records are deleted.
	MaxAgeDays int `yaml:"max_age_days"`

	// KeepImportance is the floor: records with importance at or above
	// this value are never pruned.
	KeepImportance int `yaml:"keep_importance"`

	// Schedule is a cron expression (supports @daily, @every 6h, ...).
	Schedule string `yaml:"schedule"`
}

// DefaultRetentionPolicy keeps 90 days of history and protects anything
// with importance 8 or higher, checked daily.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MaxAgeDays:     90,
		KeepImportance: 8,
		Schedule:       "@daily",
	}
}

// prunableStore is the subset of the SQLite backend the pruner needs.
// Backends without age-based deletion simply don't get a pruner.
type prunableStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time, keepImportance int) (int64, error)
}

// Pruner runs the retention policy against a prunable store.
type Pruner struct {
	store  prunableStore
	policy RetentionPolicy
	cron   *cron.Cron
	logger *slog.Logger
}

// NewPruner creates a pruner. Start must be called to schedule it.
func NewPruner(store prunableStore, policy RetentionPolicy, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAgeDays <= 0 {
		policy.MaxAgeDays = DefaultRetentionPolicy().MaxAgeDays
	}
	if policy.KeepImportance <= 0 {
		policy.KeepImportance = DefaultRetentionPolicy().KeepImportance
	}
	if policy.Schedule == "" {
		policy.Schedule = DefaultRetentionPolicy().Schedule
	}
	return &Pruner{
		store:  store,
		policy: policy,
		cron:   cron.New(),
		logger: logger.With("component", "retention"),
	}
}

// Start registers the cron entry and begins scheduling. Returns an error
// when the schedule expression does not parse.
func (p *Pruner) Start() error {
	if !p.policy.Enabled {
		return nil
	}

	_, err := p.cron.AddFunc(p.policy.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Warn("retention prune failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", p.policy.Schedule, err)
	}

	p.cron.Start()
	p.logger.Info("retention pruner started",
		"schedule", p.policy.Schedule,
		"max_age_days", p.policy.MaxAgeDays,
		"keep_importance", p.policy.KeepImportance,
	)
	return nil
}

// RunOnce applies the policy immediately and returns the deletion count.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -p.policy.MaxAgeDays)
	deleted, err := p.store.DeleteOlderThan(ctx, cutoff, p.policy.KeepImportance)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("pruned expired records", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Stop halts scheduling and waits for a running prune to finish.
func (p *Pruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}
