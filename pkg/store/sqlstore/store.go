// Package sqlstore keeps reports in a relational database through gorm. Postgres in
// production, sqlite in tests.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"campus-issue-reporting/pkg/report"
)

type Store struct {
	db *gorm.DB
}

var _ report.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the reports table.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ReportModel{}); err != nil {
		return fmt.Errorf("failed to migrate reports table: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, r report.Report) error {
	if err := s.db.WithContext(ctx).Create(toModel(r)).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", report.ErrDuplicateTrackingCode, r.TrackingCode)
		}
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context, f report.Filter) ([]report.Report, error) {
	q := s.db.WithContext(ctx).Model(&ReportModel{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status.String())
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category.String())
	}
	if dept := strings.TrimSpace(f.Department); dept != "" {
		q = q.Where("LOWER(assigned_department) = ?", strings.ToLower(dept))
	}

	var rows []ReportModel
	if err := q.Order("created_at DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	out := make([]report.Report, 0, len(rows))
	for i := range rows {
		r, err := toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) FetchByID(ctx context.Context, id string) (report.Report, error) {
	return s.fetchOne(ctx, "id = ?", id)
}

// FetchByTrackingCode is a single-row lookup on the unique tracking_code index.
func (s *Store) FetchByTrackingCode(ctx context.Context, code string) (report.Report, error) {
	return s.fetchOne(ctx, "tracking_code = ?", code)
}

func (s *Store) fetchOne(ctx context.Context, where string, arg string) (report.Report, error) {
	var m ReportModel
	err := s.db.WithContext(ctx).Where(where, arg).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return report.Report{}, fmt.Errorf("%w: %s", report.ErrNotFound, arg)
		}
		return report.Report{}, fmt.Errorf("failed to fetch report: %w", err)
	}
	return toDomain(&m)
}

// Save writes r only if the stored row still carries expectedVersion.
func (s *Store) Save(ctx context.Context, r report.Report, expectedVersion int64) error {
	m := toModel(r)

	result := s.db.WithContext(ctx).Model(&ReportModel{}).
		Where("id = ? AND version = ?", m.ID, expectedVersion).
		Updates(map[string]interface{}{
			"title":               m.Title,
			"description":         m.Description,
			"location":            m.Location,
			"status":              m.Status,
			"attachments":         m.Attachments,
			"assigned_department": m.AssignedDepartment,
			"history":             m.History,
			"version":             m.Version,
			"updated_at":          m.UpdatedAt,
			"resolved_at":         m.ResolvedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save report: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&ReportModel{}).Where("id = ?", m.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", report.ErrNotFound, m.ID)
		}
		return fmt.Errorf("%w: expected version %d", report.ErrStaleWrite, expectedVersion)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
