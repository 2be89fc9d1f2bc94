package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"pictor/internal/config"
	"pictor/internal/logging"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/stage"
)

// Options controls a single stage invocation against one bag.
type Options struct {
	Logger  *slog.Logger
	Store   *registry.Store
	Config  *config.Config
	Handler stage.Handler
	Stage   stage.Stage
	BagID   int64
}

// Run executes one stage against one bag with the pipeline's transition
// semantics: exact-precondition gating (with bounded re-entry from a failed
// run of the same stage), an exclusive per-bag lock for the stage's full
// duration, and compare-and-set persistence. Context cancellation leaves the
// registry record untouched so a later run is a clean retry.
func Run(ctx context.Context, opts Options) (*registry.Bag, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("stage handler unavailable: %s", opts.Stage)
	}
	if opts.Store == nil {
		return nil, errors.New("registry store is required")
	}
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}

	def, ok := stage.TransitionFor(opts.Stage)
	if !ok {
		return nil, fmt.Errorf("unknown stage: %s", opts.Stage)
	}

	bag, err := opts.Store.GetByID(ctx, opts.BagID)
	if err != nil {
		return nil, err
	}
	if bag == nil {
		return nil, services.Wrap(services.ErrNotFound, string(opts.Stage), "load bag",
			fmt.Sprintf("bag %d", opts.BagID), nil)
	}

	from, err := checkPrecondition(bag, def, opts.Config.Workflow.MaxStageRetries)
	if err != nil {
		return bag, err
	}

	lock := flock.New(lockPath(opts.Config, bag.ID))
	locked, err := lock.TryLock()
	if err != nil {
		return bag, fmt.Errorf("acquire bag lock: %w", err)
	}
	if !locked {
		return bag, services.Wrap(services.ErrPrecondition, string(opts.Stage), "lock",
			fmt.Sprintf("another stage is running for bag %d", bag.ID), nil)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	stageCtx := services.WithStage(ctx, string(opts.Stage))
	stageCtx = services.WithBagID(stageCtx, bag.ID)
	stageCtx = services.WithIdentifier(stageCtx, bag.Identifier)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	oldStatus := bag.Status
	if from == registry.StatusFailed {
		bag.RetryCount++
	}

	start := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("old_state", string(oldStatus)),
	)

	if err := runHandler(stageCtx, opts.Handler, bag); err != nil {
		if isCancellation(stageCtx, err) {
			stageLogger.Info("stage cancelled, registry state unchanged",
				logging.String(logging.FieldEventType, "stage_cancelled"),
				logging.Duration("stage_duration", time.Since(start)),
			)
			return bag, err
		}
		bag.SetFailed(string(opts.Stage), err.Error())
		if persistErr := opts.Store.Transition(stageCtx, bag, from); persistErr != nil {
			stageLogger.Error("failed to persist stage failure", logging.Error(persistErr))
		}
		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("old_state", string(oldStatus)),
			logging.String("new_state", string(bag.Status)),
			logging.Duration("stage_duration", time.Since(start)),
			logging.Error(err),
		)
		return bag, err
	}

	bag.Status = def.Done
	bag.ClearFailure()
	if err := opts.Store.Transition(stageCtx, bag, from); err != nil {
		return bag, fmt.Errorf("persist stage result: %w", err)
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("old_state", string(oldStatus)),
		logging.String("new_state", string(bag.Status)),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return bag, nil
}

// checkPrecondition enforces exact-state gating. Re-invoking a completed
// stage is a precondition failure, never a re-run; a failed bag may re-enter
// only the stage that failed, a bounded number of times.
func checkPrecondition(bag *registry.Bag, def stage.Definition, maxRetries int) (registry.Status, error) {
	if bag.Status == def.Precondition {
		return def.Precondition, nil
	}
	if bag.Status == registry.StatusFailed && bag.FailedStage == string(def.Stage) {
		if bag.RetryCount >= maxRetries {
			return "", services.Wrap(services.ErrPrecondition, string(def.Stage), "retry",
				fmt.Sprintf("bag %d exhausted %d retries", bag.ID, maxRetries), nil)
		}
		return registry.StatusFailed, nil
	}
	return "", services.Wrap(services.ErrPrecondition, string(def.Stage), "state check",
		fmt.Sprintf("bag %d is %s, stage requires %s", bag.ID, bag.Status, def.Precondition), nil)
}

func runHandler(ctx context.Context, handler stage.Handler, bag *registry.Bag) error {
	if err := handler.Prepare(ctx, bag); err != nil {
		return err
	}
	return handler.Execute(ctx, bag)
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func lockPath(cfg *config.Config, bagID int64) string {
	return filepath.Join(cfg.LockDir(), fmt.Sprintf("bag-%d.lock", bagID))
}
