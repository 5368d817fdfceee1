package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizpulse/internal/models"

	"github.com/google/uuid"
)

const syncJobColumns = `id, business_entity_id, job_type, status, start_time, end_time, duration,
        error_message, error_code, retry_count, max_retries, next_retry_at, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncJob(row rowScanner) (*models.SyncJob, error) {
	var (
		job          models.SyncJob
		endTime      sql.NullTime
		duration     sql.NullInt64
		errorMessage sql.NullString
		errorCode    sql.NullString
		nextRetryAt  sql.NullTime
		metadata     sql.NullString
	)
	err := row.Scan(
		&job.ID,
		&job.BusinessEntityID,
		&job.JobType,
		&job.Status,
		&job.StartTime,
		&endTime,
		&duration,
		&errorMessage,
		&errorCode,
		&job.RetryCount,
		&job.MaxRetries,
		&nextRetryAt,
		&metadata,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.StartTime = job.StartTime.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	job.EndTime = nullTimePtr(endTime)
	job.Duration = nullInt64Ptr(duration)
	job.ErrorMessage = nullStringPtr(errorMessage)
	job.ErrorCode = nullStringPtr(errorCode)
	job.NextRetryAt = nullTimePtr(nextRetryAt)
	if job.Metadata, err = decodeJSONMap(metadata); err != nil {
		return nil, fmt.Errorf("decode job metadata: %w", err)
	}
	return &job, nil
}

// CreateSyncJob inserts a job record, assigning id and timestamps when empty.
func (db *DB) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.StartTime.IsZero() {
		job.StartTime = now
	}
	if job.Metadata == nil {
		job.Metadata = map[string]any{}
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	metadata, err := encodeJSON(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}

	query := `INSERT INTO sync_jobs (` + syncJobColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		job.ID,
		job.BusinessEntityID,
		job.JobType,
		job.Status,
		job.StartTime.UTC(),
		timeArg(job.EndTime),
		job.Duration,
		job.ErrorMessage,
		job.ErrorCode,
		job.RetryCount,
		job.MaxRetries,
		timeArg(job.NextRetryAt),
		metadata,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

// UpdateSyncJob persists every mutable field of the job.
func (db *DB) UpdateSyncJob(ctx context.Context, job *models.SyncJob) error {
	return db.updateSyncJob(ctx, job, "")
}

// UpdateSyncJobFrom persists the job only while its stored status is still fromStatus.
// ErrStatusChanged is returned when another writer moved the job first.
func (db *DB) UpdateSyncJobFrom(ctx context.Context, job *models.SyncJob, fromStatus string) error {
	return db.updateSyncJob(ctx, job, fromStatus)
}

func (db *DB) updateSyncJob(ctx context.Context, job *models.SyncJob, fromStatus string) error {
	metadata, err := encodeJSON(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}
	updatedAt := time.Now().UTC()

	query := `UPDATE sync_jobs SET status = ?, start_time = ?, end_time = ?, duration = ?, error_message = ?,
              error_code = ?, retry_count = ?, max_retries = ?, next_retry_at = ?, metadata = ?, updated_at = ?
              WHERE id = ?`
	args := []any{
		job.Status,
		job.StartTime.UTC(),
		timeArg(job.EndTime),
		job.Duration,
		job.ErrorMessage,
		job.ErrorCode,
		job.RetryCount,
		job.MaxRetries,
		timeArg(job.NextRetryAt),
		metadata,
		updatedAt,
		job.ID,
	}
	if fromStatus != "" {
		query += ` AND status = ?`
		args = append(args, fromStatus)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if fromStatus == "" {
			return fmt.Errorf("sync job %s: %w", job.ID, ErrNotFound)
		}
		if _, err := db.GetSyncJob(ctx, job.ID); err != nil {
			return err
		}
		return fmt.Errorf("sync job %s is no longer %s: %w", job.ID, fromStatus, ErrStatusChanged)
	}
	job.UpdatedAt = updatedAt
	return nil
}

// GetSyncJob returns a job by id.
func (db *DB) GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = ?`
	job, err := scanSyncJob(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}
	return job, nil
}

// ListSyncJobs returns a page of jobs matching the filter and the total match count.
func (db *DB) ListSyncJobs(ctx context.Context, filter models.SyncJobFilter) ([]*models.SyncJob, int, error) {
	filter.Normalize()

	var (
		where []string
		args  []any
	)
	if filter.BusinessEntityID != "" {
		where = append(where, "business_entity_id = ?")
		args = append(args, filter.BusinessEntityID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.JobType != "" {
		where = append(where, "job_type = ?")
		args = append(args, filter.JobType)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_jobs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sync jobs: %w", err)
	}

	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs` + clause + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := collectSyncJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// GetDueRetryJobs returns pending retries whose backoff has elapsed.
func (db *DB) GetDueRetryJobs(ctx context.Context, now time.Time, limit int) ([]*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs
              WHERE status = ? AND retry_count > 0 AND next_retry_at IS NOT NULL AND next_retry_at <= ?
              ORDER BY next_retry_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.JobStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due retry jobs: %w", err)
	}
	defer rows.Close()
	return collectSyncJobs(rows)
}

// GetSyncJobStats aggregates job outcomes for a tenant.
func (db *DB) GetSyncJobStats(ctx context.Context, tenantID string) (*models.SyncJobStats, error) {
	query := `SELECT COUNT(*),
                     SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
                     SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
                     SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END),
                     SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
                     AVG(CASE WHEN status = 'completed' AND duration IS NOT NULL THEN duration END)
              FROM sync_jobs WHERE business_entity_id = ?`

	var (
		stats                               models.SyncJobStats
		completed, failed, running, pending sql.NullInt64
		avg                                 sql.NullFloat64
	)
	err := db.QueryRowContext(ctx, query, tenantID).Scan(&stats.TotalJobs, &completed, &failed, &running, &pending, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sync jobs: %w", err)
	}
	stats.CompletedJobs = int(completed.Int64)
	stats.FailedJobs = int(failed.Int64)
	stats.RunningJobs = int(running.Int64)
	stats.PendingJobs = int(pending.Int64)
	stats.AverageDuration = avg.Float64
	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}

	var last sql.NullTime
	err = db.QueryRowContext(ctx, `SELECT end_time FROM sync_jobs
              WHERE business_entity_id = ? AND status = 'completed' AND end_time IS NOT NULL
              ORDER BY end_time DESC LIMIT 1`, tenantID).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last sync time: %w", err)
	}
	stats.LastSyncAt = nullTimePtr(last)

	return &stats, nil
}

func collectSyncJobs(rows *sql.Rows) ([]*models.SyncJob, error) {
	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}
