package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
)

var storedCfg *config.RetentionConfig

// SetConfig stores the retention config so tests (or admin triggers) can
// invoke retention runs on-demand.
func SetConfig(rc config.RetentionConfig) {
	storedCfg = &rc
}

// RunImmediate triggers a single retention run using the stored config.
func RunImmediate() error {
	if storedCfg == nil {
		return fmt.Errorf("no retention config registered")
	}
	return runOnce(*storedCfg)
}

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, rc config.RetentionConfig) (context.CancelFunc, error) {
	if !rc.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	// map empty cron to default daily @02:00
	cronExpr := rc.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", rc.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", rc.Cron)
	}
	if _, err := parsePeriod(rc.Period); err != nil {
		return nil, err
	}

	SetConfig(rc)
	logger.Info("retention_enabled", "cron", cronExpr, "period", rc.Period)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, rc, cronExpr)
	return cancel, nil
}

// parsePeriod accepts go durations plus day suffixes like "30d".
func parsePeriod(p string) (time.Duration, error) {
	if p == "" {
		return 30 * 24 * time.Hour, nil
	}
	if n := len(p); n > 1 && p[n-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(p[:n-1], "%d", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(p)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid retention period: %q", p)
	}
	return d, nil
}

// runOnce prunes mirrored history older than the configured period.
func runOnce(rc config.RetentionConfig) error {
	period, err := parsePeriod(rc.Period)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-period)
	n, err := store.PruneBefore(cutoff, rc.DryRun)
	if err != nil {
		logger.Error("retention_prune_failed", "error", err)
		return err
	}
	logger.Info("retention_run_complete", "pruned", n, "cutoff", cutoff.Format(time.RFC3339), "dry_run", rc.DryRun)
	if max := rc.MaxBytes.Int64(); max > 0 {
		if used := store.DiskUsage(); used > uint64(max) {
			logger.Warn("history_mirror_over_budget", "used_bytes", used, "max_bytes", max)
		}
	}
	return nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, rc config.RetentionConfig, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := runOnce(rc); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}
