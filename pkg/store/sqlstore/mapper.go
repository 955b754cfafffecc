package sqlstore

import (
	"fmt"
	"time"

	"campus-issue-reporting/pkg/report"
)

// Timestamps are stored as unix milliseconds, history keeps full precision inside the JSON.

func toModel(r report.Report) *ReportModel {
	m := &ReportModel{
		ID:                 r.ID,
		TrackingCode:       r.TrackingCode,
		Category:           r.Category.String(),
		Title:              r.Title,
		Description:        r.Description,
		Location:           r.Location,
		Urgency:            r.Urgency.String(),
		Status:             r.Status.String(),
		Attachments:        r.Attachments,
		ReporterRef:        r.ReporterRef,
		AssignedDepartment: r.AssignedDepartment,
		History:            r.History,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt.UnixMilli(),
		UpdatedAt:          r.UpdatedAt.UnixMilli(),
	}
	if m.Attachments == nil {
		m.Attachments = []report.Attachment{}
	}
	if r.ResolvedAt != nil {
		resolved := r.ResolvedAt.UnixMilli()
		m.ResolvedAt = &resolved
	}
	return m
}

func toDomain(m *ReportModel) (report.Report, error) {
	r := report.Report{
		ID:                 m.ID,
		TrackingCode:       m.TrackingCode,
		Category:           report.Category(m.Category),
		Title:              m.Title,
		Description:        m.Description,
		Location:           m.Location,
		Urgency:            report.Urgency(m.Urgency),
		Status:             report.Status(m.Status),
		Attachments:        []report.Attachment(m.Attachments),
		ReporterRef:        m.ReporterRef,
		AssignedDepartment: m.AssignedDepartment,
		History:            []report.HistoryEntry(m.History),
		Version:            m.Version,
		CreatedAt:          time.UnixMilli(m.CreatedAt).UTC(),
		UpdatedAt:          time.UnixMilli(m.UpdatedAt).UTC(),
	}
	if r.Attachments == nil {
		r.Attachments = []report.Attachment{}
	}
	if m.ResolvedAt != nil {
		resolved := time.UnixMilli(*m.ResolvedAt).UTC()
		r.ResolvedAt = &resolved
	}

	if err := r.Validate(); err != nil {
		return report.Report{}, fmt.Errorf("stored report %s is corrupt: %w", m.ID, err)
	}
	return r, nil
}
