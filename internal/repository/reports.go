package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"smart-mail-router/internal/model"
)

// DefaultPageSize applies when a report listing does not set a limit
const DefaultPageSize = 50

// MaxPageSize caps a single report listing
const MaxPageSize = 500

// ReportFilter narrows and pages ListReports
type ReportFilter struct {
	Status model.ReportStatus
	Page   int
	Limit  int
}

// normalize clamps paging to sane values
func (f *ReportFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}

// CreateReport stores a report and sets its ID
func (r *Repository) CreateReport(ctx context.Context, report *model.Report) error {
	if report.Date.IsZero() {
		report.Date = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// ListReports returns one page of reports, newest first, and the total count
func (r *Repository) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, int64, error) {
	filter.normalize()

	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&model.Report{})
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	var reports []model.Report
	err := scoped().Order("date DESC, id DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&reports).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get reports: %w", err)
	}
	return reports, total, nil
}

// GetReport returns a report by ID
func (r *Repository) GetReport(ctx context.Context, id uint) (*model.Report, error) {
	var report model.Report
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, notFound("report", err)
	}
	return &report, nil
}

// DeleteReport removes a report
func (r *Repository) DeleteReport(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Unscoped().Delete(&model.Report{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("report: %w", ErrNotFound)
	}
	return nil
}

// DeleteReportsOlderThan removes reports dated more than days days ago and
// returns how many were deleted
func (r *Repository) DeleteReportsOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, invalid("retention days must be greater than 0")
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	result := r.db.WithContext(ctx).Unscoped().Where("date < ?", cutoff).Delete(&model.Report{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old reports: %w", result.Error)
	}

	if r.metrics != nil {
		r.metrics.ReportsPurged.Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// MarkReportFailed records a delivery failure on a report
func (r *Repository) MarkReportFailed(ctx context.Context, id uint, reason string) error {
	if err := r.amendReport(ctx, id, model.ReportFailed, "Delivery failed: "+reason); err != nil {
		return fmt.Errorf("failed to mark report failed: %w", err)
	}
	return nil
}

// MarkReportFallback records that the fallback transport delivered an
// email after the routed provider failed
func (r *Repository) MarkReportFallback(ctx context.Context, id uint) error {
	if err := r.amendReport(ctx, id, model.ReportSent, "Delivered via fallback"); err != nil {
		return fmt.Errorf("failed to mark report delivered via fallback: %w", err)
	}
	return nil
}

// amendReport sets a report's status and appends line to its log
func (r *Repository) amendReport(ctx context.Context, id uint, status model.ReportStatus, line string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var report model.Report
		if err := tx.First(&report, id).Error; err != nil {
			return notFound("report", err)
		}

		return tx.Model(&report).Updates(map[string]interface{}{
			"status": status,
			"log":    strings.TrimSpace(report.Log + "\n" + line),
		}).Error
	})
}

// PurgeExpiredReports applies the configured retention period. Nothing is
// deleted when retention is disabled.
func (r *Repository) PurgeExpiredReports(ctx context.Context) (int64, error) {
	settings, err := r.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	if settings == nil {
		settings = model.DefaultSettings()
	}
	if settings.LogsRetentionDays <= 0 {
		return 0, nil
	}
	return r.DeleteReportsOlderThan(ctx, settings.LogsRetentionDays)
}
