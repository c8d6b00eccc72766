package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates supported timetable export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
	ExportFormatICS ExportFormat = "ics"
)

// Valid reports whether the format has a renderer.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatCSV || f == ExportFormatPDF || f == ExportFormatICS
}

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob persisted background job metadata.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	Params       ExportJobParams `db:"params" json:"params"`
	Status       ExportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ExportJobParams stores the timetable selection persisted as JSONB.
type ExportJobParams struct {
	Format     ExportFormat `json:"format"`
	RoomID     string       `json:"room_id,omitempty"`
	Kind       string       `json:"kind,omitempty"`
	Batch      string       `json:"batch,omitempty"`
	Semester   string       `json:"semester,omitempty"`
	CourseCode string       `json:"course_code,omitempty"`
	From       string       `json:"from,omitempty"`
	To         string       `json:"to,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ExportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ExportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportJobParams", value)
	}
	if len(data) == 0 {
		*p = ExportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export job params: %w", err)
	}
	return nil
}

// ExportRequest is the admin payload for queueing an export.
type ExportRequest struct {
	Format     ExportFormat `json:"format" validate:"required,oneof=csv pdf ics"`
	RoomID     string       `json:"room_id"`
	Kind       string       `json:"kind" validate:"omitempty,oneof=CLASS EXAM BOOKING class exam booking"`
	Batch      string       `json:"batch"`
	Semester   string       `json:"semester"`
	CourseCode string       `json:"course_code"`
	From       string       `json:"from"`
	To         string       `json:"to"`
}

// ExportJobStatus is the client view of an export job.
type ExportJobStatus struct {
	ID        string       `json:"id"`
	Status    ExportStatus `json:"status"`
	Progress  int          `json:"progress"`
	ResultURL *string      `json:"result_url,omitempty"`
	Error     *string      `json:"error,omitempty"`
}
