package api

import (
	"fmt"
	"net/http"
	"time"

	"bizpulse/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	jobsSheet     = "Sync jobs"
	maxExportRows = 5000
	xlsxMIME      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var jobColumns = []string{
	"ID", "Job type", "Status", "Trigger", "Start", "End",
	"Duration ms", "Retries", "Error code", "Error", "Next retry",
}

// handleExportJobs отдаёт историю задач тенанта в виде xlsx
func (s *HTTPServer) handleExportJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = models.MaxJobsPageSize
	filter.Offset = 0

	var jobs []*models.SyncJob
	for len(jobs) < maxExportRows {
		page, total, err := s.svc.GetSyncJobs(r.Context(), filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		jobs = append(jobs, page...)
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			break
		}
	}

	tenant := tenantID(r)
	f, err := buildJobsWorkbook(jobs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("sync_jobs_%s_%s.xlsx", tenant, s.now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenant).Msg("failed to write export")
		return
	}
	s.logger.Info().Str("tenant_id", tenant).Int("rows", len(jobs)).Msg("sync jobs exported")
}

func buildJobsWorkbook(jobs []*models.SyncJob) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(jobsSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, title := range jobColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(jobsSheet, cell, title)
		_ = f.SetCellStyle(jobsSheet, cell, cell, headerStyle)
	}

	failedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})

	for i, job := range jobs {
		row := i + 2
		values := []any{
			job.ID,
			job.JobType,
			job.Status,
			job.Trigger(),
			formatTime(&job.StartTime),
			formatTime(job.EndTime),
			derefInt64(job.Duration),
			job.RetryCount,
			derefString(job.ErrorCode),
			derefString(job.ErrorMessage),
			formatTime(job.NextRetryAt),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(jobsSheet, cell, v)
		}
		if job.Status == models.JobStatusFailed {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(jobColumns), row)
			_ = f.SetCellStyle(jobsSheet, first, last, failedStyle)
		}
	}

	_ = f.SetColWidth(jobsSheet, "A", "A", 38)
	_ = f.SetColWidth(jobsSheet, "B", "I", 16)
	_ = f.SetColWidth(jobsSheet, "E", "F", 22)
	_ = f.SetColWidth(jobsSheet, "J", "J", 48)
	_ = f.SetColWidth(jobsSheet, "K", "K", 22)

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt64(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}
