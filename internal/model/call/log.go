package call

import "time"

// Log persists one completed call for the history/analytics pages.
type Log struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(64)"`
	EngineCallID *string    `json:"engineCallId,omitempty" gorm:"index"`
	Duration     int        `json:"duration" gorm:"not null"`
	Status       string     `json:"status" gorm:"not null"`
	StartedAt    time.Time  `json:"startedAt" gorm:"not null;index:idx_call_logs_started,sort:desc"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	RecordingURL *string    `json:"recordingUrl,omitempty"`
	Transcript   *string    `json:"transcript,omitempty"`
}

// TableName pins the table name used by the dashboard queries.
func (Log) TableName() string { return "call_logs" }

// Lead captures visitor contact details volunteered during a call.
type Lead struct {
	ID            string         `json:"id" gorm:"primaryKey;type:varchar(64)"`
	CallLogID     *string        `json:"callLogId,omitempty" gorm:"index"`
	Name          *string        `json:"name,omitempty"`
	Email         *string        `json:"email,omitempty"`
	Phone         *string        `json:"phone,omitempty"`
	Company       *string        `json:"company,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	ExtractedData map[string]any `json:"extractedData,omitempty" gorm:"serializer:json;type:jsonb"`
	CreatedAt     time.Time      `json:"createdAt" gorm:"not null;index:idx_leads_created,sort:desc"`
}

func (Lead) TableName() string { return "leads" }

// Stats aggregates call history for the dashboard.
type Stats struct {
	TotalCalls     int `json:"totalCalls"`
	AvgDuration    int `json:"avgDuration"`
	TotalDuration  int `json:"totalDuration"`
	CompletedCalls int `json:"completedCalls"`
}
