package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fleveque/itemgen-service/internal/model"
)

// RunRepository persists one row per generate request.
// Go interfaces are implicit, so tests can swap in an in-memory fake.
type RunRepository interface {
	Create(ctx context.Context, run *model.GenerationRun) error
	ListRecent(ctx context.Context, limit int) ([]model.GenerationRun, error)
	Count(ctx context.Context) (int64, error)
	CountBySuccess(ctx context.Context, success bool) (int64, error)
	SumPlaceholders(ctx context.Context) (int64, error)
}

type sqliteRunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new SQLite-backed RunRepository.
func NewRunRepository(db *sqlx.DB) RunRepository {
	return &sqliteRunRepository{db: db}
}

func (r *sqliteRunRepository) Create(ctx context.Context, run *model.GenerationRun) error {
	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO generation_runs (topic, requested_count, item_count, resolved_count,
			placeholder_count, success, error_message, duration_ms)
		VALUES (:topic, :requested_count, :item_count, :resolved_count,
			:placeholder_count, :success, :error_message, :duration_ms)
	`, run)
	if err != nil {
		return fmt.Errorf("creating generation run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	run.ID = id
	return nil
}

func (r *sqliteRunRepository) ListRecent(ctx context.Context, limit int) ([]model.GenerationRun, error) {
	var runs []model.GenerationRun
	err := r.db.SelectContext(ctx, &runs,
		"SELECT * FROM generation_runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing generation runs: %w", err)
	}
	return runs, nil
}

func (r *sqliteRunRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM generation_runs")
	return count, err
}

func (r *sqliteRunRepository) CountBySuccess(ctx context.Context, success bool) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM generation_runs WHERE success = ?", success)
	return count, err
}

func (r *sqliteRunRepository) SumPlaceholders(ctx context.Context) (int64, error) {
	var sum int64
	err := r.db.GetContext(ctx, &sum, "SELECT COALESCE(SUM(placeholder_count), 0) FROM generation_runs")
	return sum, err
}

// LLMCallRepository handles persistence of LLM call tracking.
type LLMCallRepository interface {
	Create(ctx context.Context, call *model.LLMCall) error
	CountByProvider(ctx context.Context, provider string) (int64, error)
	CountFailed(ctx context.Context) (int64, error)
}

type sqliteLLMCallRepository struct {
	db *sqlx.DB
}

// NewLLMCallRepository creates a new SQLite-backed LLMCallRepository.
func NewLLMCallRepository(db *sqlx.DB) LLMCallRepository {
	return &sqliteLLMCallRepository{db: db}
}

func (r *sqliteLLMCallRepository) Create(ctx context.Context, call *model.LLMCall) error {
	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO llm_calls (topic, provider, model, success, duration_ms)
		VALUES (:topic, :provider, :model, :success, :duration_ms)
	`, call)
	if err != nil {
		return fmt.Errorf("creating llm call record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	call.ID = id
	return nil
}

func (r *sqliteLLMCallRepository) CountByProvider(ctx context.Context, provider string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM llm_calls WHERE provider = ?", provider)
	return count, err
}

func (r *sqliteLLMCallRepository) CountFailed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM llm_calls WHERE success = 0")
	return count, err
}
