package mongostore

import (
	"time"

	"campus-issue-reporting/pkg/report"
)

type attachmentDoc struct {
	Kind string `bson:"kind"`
	URL  string `bson:"url"`
}

type historyDoc struct {
	Status     string    `bson:"status"`
	Role       string    `bson:"role"`
	At         time.Time `bson:"at"`
	Note       string    `bson:"note,omitempty"`
	Department string    `bson:"department,omitempty"`
}

type reportDoc struct {
	ID                 string          `bson:"_id"`
	TrackingCode       string          `bson:"tracking_code"`
	Category           string          `bson:"category"`
	Title              string          `bson:"title"`
	Description        string          `bson:"description"`
	Location           string          `bson:"location,omitempty"`
	Urgency            string          `bson:"urgency"`
	Status             string          `bson:"status"`
	Attachments        []attachmentDoc `bson:"attachments"`
	ReporterRef        string          `bson:"reporter_ref,omitempty"`
	AssignedDepartment string          `bson:"assigned_department,omitempty"`
	History            []historyDoc    `bson:"history"`
	Version            int64           `bson:"version"`
	CreatedAt          time.Time       `bson:"created_at"`
	UpdatedAt          time.Time       `bson:"updated_at"`
	ResolvedAt         *time.Time      `bson:"resolved_at"`
}

func toDoc(r report.Report) reportDoc {
	d := reportDoc{
		ID:                 r.ID,
		TrackingCode:       r.TrackingCode,
		Category:           r.Category.String(),
		Title:              r.Title,
		Description:        r.Description,
		Location:           r.Location,
		Urgency:            r.Urgency.String(),
		Status:             r.Status.String(),
		Attachments:        make([]attachmentDoc, 0, len(r.Attachments)),
		ReporterRef:        r.ReporterRef,
		AssignedDepartment: r.AssignedDepartment,
		History:            make([]historyDoc, 0, len(r.History)),
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ResolvedAt:         r.ResolvedAt,
	}
	for _, a := range r.Attachments {
		d.Attachments = append(d.Attachments, attachmentDoc{Kind: string(a.Kind), URL: a.URL})
	}
	for _, h := range r.History {
		d.History = append(d.History, historyDoc{
			Status:     h.Status.String(),
			Role:       h.Role.String(),
			At:         h.At,
			Note:       h.Note,
			Department: h.Department,
		})
	}
	return d
}

func (d reportDoc) toDomain() report.Report {
	r := report.Report{
		ID:                 d.ID,
		TrackingCode:       d.TrackingCode,
		Category:           report.Category(d.Category),
		Title:              d.Title,
		Description:        d.Description,
		Location:           d.Location,
		Urgency:            report.Urgency(d.Urgency),
		Status:             report.Status(d.Status),
		Attachments:        make([]report.Attachment, 0, len(d.Attachments)),
		ReporterRef:        d.ReporterRef,
		AssignedDepartment: d.AssignedDepartment,
		History:            make([]report.HistoryEntry, 0, len(d.History)),
		Version:            d.Version,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	for _, a := range d.Attachments {
		r.Attachments = append(r.Attachments, report.Attachment{Kind: report.AttachmentKind(a.Kind), URL: a.URL})
	}
	for _, h := range d.History {
		r.History = append(r.History, report.HistoryEntry{
			Status:     report.Status(h.Status),
			Role:       report.Role(h.Role),
			At:         h.At.UTC(),
			Note:       h.Note,
			Department: h.Department,
		})
	}
	if d.ResolvedAt != nil {
		resolved := d.ResolvedAt.UTC()
		r.ResolvedAt = &resolved
	}
	return r
}
