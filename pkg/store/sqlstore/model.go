package sqlstore

import (
	"gorm.io/datatypes"

	"campus-issue-reporting/pkg/report"
)

type ReportModel struct {
	ID                 string                                   `gorm:"primaryKey;size:36"`
	TrackingCode       string                                   `gorm:"uniqueIndex;size:16;not null"`
	Category           string                                   `gorm:"size:32;not null;index"`
	Title              string                                   `gorm:"size:200;not null"`
	Description        string                                   `gorm:"type:text;not null"`
	Location           string                                   `gorm:"size:255"`
	Urgency            string                                   `gorm:"size:16;not null;index"`
	Status             string                                   `gorm:"size:20;not null;index"`
	Attachments        datatypes.JSONSlice[report.Attachment]   `gorm:"not null"`
	ReporterRef        string                                   `gorm:"size:128;index"`
	AssignedDepartment string                                   `gorm:"size:64;index"`
	History            datatypes.JSONSlice[report.HistoryEntry] `gorm:"not null"`
	Version            int64                                    `gorm:"not null;default:1"`
	CreatedAt          int64                                    `gorm:"autoCreateTime:false;not null;index"`
	UpdatedAt          int64                                    `gorm:"autoUpdateTime:false;not null"`
	ResolvedAt         *int64
}

func (ReportModel) TableName() string {
	return "reports"
}
