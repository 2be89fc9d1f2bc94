package stageexec_test

import (
	"context"
	"errors"
	"testing"

	"pictor/internal/logging"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/stage"
	"pictor/internal/stageexec"
	"pictor/internal/testsupport"
)

type fakeHandler struct {
	prepareErr error
	executeErr error
	executed   int
	mutate     func(*registry.Bag)
}

func (h *fakeHandler) Prepare(ctx context.Context, bag *registry.Bag) error {
	return h.prepareErr
}

func (h *fakeHandler) Execute(ctx context.Context, bag *registry.Bag) error {
	h.executed++
	if h.mutate != nil {
		h.mutate(bag)
	}
	return h.executeErr
}

func TestRunAdvancesState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	bag, err := store.Add(ctx, "/inbound/bag")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	handler := &fakeHandler{mutate: func(b *registry.Bag) {
		b.OriginIdentifier = "coll123"
	}}
	result, err := stageexec.Run(ctx, stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: handler,
		Stage:   stage.Prepare,
		BagID:   bag.ID,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != registry.StatusPrepared {
		t.Fatalf("expected prepared, got %s", result.Status)
	}

	fetched, err := store.GetByID(ctx, bag.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != registry.StatusPrepared || fetched.OriginIdentifier != "coll123" {
		t.Fatalf("mutations not persisted: %#v", fetched)
	}
}

func TestRunRejectsWrongState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	bag, err := store.Add(ctx, "/inbound/bag")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	handler := &fakeHandler{}
	_, err = stageexec.Run(ctx, stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: handler,
		Stage:   stage.MakePDF,
		BagID:   bag.ID,
	})
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if handler.executed != 0 {
		t.Fatal("handler must not run on precondition failure")
	}

	fetched, err := store.GetByID(ctx, bag.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != registry.StatusCreated {
		t.Fatalf("state must be unchanged, got %s", fetched.Status)
	}
}

func TestRunCompletedStageIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	bag, err := store.Add(ctx, "/inbound/bag")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	opts := stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: &fakeHandler{},
		Stage:   stage.Prepare,
		BagID:   bag.ID,
	}
	if _, err := stageexec.Run(ctx, opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	_, err = stageexec.Run(ctx, opts)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition failure on re-run, got %v", err)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	bag, err := store.Add(ctx, "/inbound/bag")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	stageErr := services.Wrap(services.ErrExternalTool, "prepare", "unpack", "boom", nil)
	_, err = stageexec.Run(ctx, stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: &fakeHandler{executeErr: stageErr},
		Stage:   stage.Prepare,
		BagID:   bag.ID,
	})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected stage error, got %v", err)
	}

	fetched, err := store.GetByID(ctx, bag.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != registry.StatusFailed {
		t.Fatalf("expected failed, got %s", fetched.Status)
	}
	if fetched.FailedStage != "prepare" {
		t.Fatalf("expected failing stage recorded, got %q", fetched.FailedStage)
	}
	if fetched.ErrorMessage == "" {
		t.Fatal("expected error detail recorded")
	}
}

func TestRunRetriesFailedStageWithinBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxStageRetries(2))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	bag, err := store.Add(ctx, "/inbound/bag")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	failing := &fakeHandler{executeErr: errors.New("tool crashed")}
	opts := stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: failing,
		Stage:   stage.Prepare,
		BagID:   bag.ID,
	}

	// First run fails, two retries allowed, third attempt exhausts the budget.
	for i := 0; i < 3; i++ {
		if _, err := stageexec.Run(ctx, opts); err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}
	_, err = stageexec.Run(ctx, opts)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected retry budget exhaustion, got %v", err)
	}
	if failing.executed != 3 {
		t.Fatalf("expected 3 executions, got %d", failing.executed)
	}
}

func TestRunFailedStageSucceedsOnRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	bag, err := store.Add(ctx, "/inbound/bag")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	handler := &fakeHandler{executeErr: errors.New("transient")}
	opts := stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: handler,
		Stage:   stage.Prepare,
		BagID:   bag.ID,
	}
	if _, err := stageexec.Run(ctx, opts); err == nil {
		t.Fatal("expected first run to fail")
	}

	handler.executeErr = nil
	result, err := stageexec.Run(ctx, opts)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Status != registry.StatusPrepared {
		t.Fatalf("expected prepared after retry, got %s", result.Status)
	}
	if result.FailedStage != "" || result.ErrorMessage != "" || result.RetryCount != 0 {
		t.Fatalf("failure bookkeeping not cleared: %#v", result)
	}
}

func TestRunWrongStageAfterFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	bag, err := store.Add(ctx, "/inbound/bag")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	opts := stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: &fakeHandler{executeErr: errors.New("boom")},
		Stage:   stage.Prepare,
		BagID:   bag.ID,
	}
	if _, err := stageexec.Run(ctx, opts); err == nil {
		t.Fatal("expected failure")
	}

	// A different stage must not re-enter the failed bag.
	opts.Stage = stage.MakeDerivatives
	_, err = stageexec.Run(ctx, opts)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestRunCancellationLeavesStateUnchanged(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	bag, err := store.Add(context.Background(), "/inbound/bag")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	handler := &fakeHandler{mutate: func(b *registry.Bag) {}}
	handler.executeErr = context.Canceled
	cancel()

	_, err = stageexec.Run(ctx, stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: handler,
		Stage:   stage.Prepare,
		BagID:   bag.ID,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	fetched, err := store.GetByID(context.Background(), bag.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != registry.StatusCreated {
		t.Fatalf("cancellation must leave state unchanged, got %s", fetched.Status)
	}
}

func TestRunUnknownBag(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Config:  cfg,
		Handler: &fakeHandler{},
		Stage:   stage.Prepare,
		BagID:   12345,
	})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
