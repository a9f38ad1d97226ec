package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/webglow/voice-support/backend/internal/model/call"
)

// GormStorage persists call logs and leads in Postgres via GORM.
// Selected over MemoryStorage when DATABASE_URL is configured.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage opens the database and migrates the call_logs/leads tables.
func NewGormStorage(dsn string) (*GormStorage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&call.Log{}, &call.Lead{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &GormStorage{db: db}, nil
}

// CreateCallLog stores a completed call, filling id and start time when absent.
func (s *GormStorage) CreateCallLog(ctx context.Context, logEntry call.Log) (call.Log, error) {
	if logEntry.ID == "" {
		logEntry.ID = uuid.NewString()
	}
	if logEntry.StartedAt.IsZero() {
		logEntry.StartedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(&logEntry).Error; err != nil {
		return call.Log{}, fmt.Errorf("create call log: %w", err)
	}
	return logEntry, nil
}

// GetCallLogs returns call logs newest first.
func (s *GormStorage) GetCallLogs(ctx context.Context) ([]call.Log, error) {
	var logs []call.Log
	if err := s.db.WithContext(ctx).Order("started_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list call logs: %w", err)
	}
	return logs, nil
}

// GetCallLog looks up a call log by identifier.
func (s *GormStorage) GetCallLog(ctx context.Context, id string) (call.Log, error) {
	var logEntry call.Log
	err := s.db.WithContext(ctx).First(&logEntry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return call.Log{}, ErrNotFound
	}
	if err != nil {
		return call.Log{}, fmt.Errorf("get call log: %w", err)
	}
	return logEntry, nil
}

// UpdateCallLog applies the non-nil fields of updates to an existing log.
func (s *GormStorage) UpdateCallLog(ctx context.Context, id string, updates CallLogUpdate) (call.Log, error) {
	fields := map[string]any{}
	if updates.EngineCallID != nil {
		fields["engine_call_id"] = *updates.EngineCallID
	}
	if updates.Duration != nil {
		fields["duration"] = *updates.Duration
	}
	if updates.Status != nil {
		fields["status"] = *updates.Status
	}
	if updates.EndedAt != nil {
		fields["ended_at"] = *updates.EndedAt
	}
	if updates.RecordingURL != nil {
		fields["recording_url"] = *updates.RecordingURL
	}
	if updates.Transcript != nil {
		fields["transcript"] = *updates.Transcript
	}

	if len(fields) > 0 {
		result := s.db.WithContext(ctx).Model(&call.Log{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			return call.Log{}, fmt.Errorf("update call log: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return call.Log{}, ErrNotFound
		}
	}

	return s.GetCallLog(ctx, id)
}

// GetCallStats aggregates the stored call history in one query.
func (s *GormStorage) GetCallStats(ctx context.Context) (call.Stats, error) {
	var row struct {
		TotalCalls     int
		TotalDuration  int
		AvgDuration    int
		CompletedCalls int
	}

	err := s.db.WithContext(ctx).Model(&call.Log{}).
		Select("COUNT(*) AS total_calls, " +
			"COALESCE(SUM(duration), 0) AS total_duration, " +
			"COALESCE(CAST(AVG(duration) AS INTEGER), 0) AS avg_duration, " +
			"COUNT(*) FILTER (WHERE status = 'completed') AS completed_calls").
		Scan(&row).Error
	if err != nil {
		return call.Stats{}, fmt.Errorf("call stats: %w", err)
	}

	return call.Stats{
		TotalCalls:     row.TotalCalls,
		AvgDuration:    row.AvgDuration,
		TotalDuration:  row.TotalDuration,
		CompletedCalls: row.CompletedCalls,
	}, nil
}

// CreateLead stores a captured lead.
func (s *GormStorage) CreateLead(ctx context.Context, lead call.Lead) (call.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(&lead).Error; err != nil {
		return call.Lead{}, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}

// GetLeads returns leads newest first.
func (s *GormStorage) GetLeads(ctx context.Context) ([]call.Lead, error) {
	var leads []call.Lead
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

// GetLead looks up a lead by identifier.
func (s *GormStorage) GetLead(ctx context.Context, id string) (call.Lead, error) {
	var lead call.Lead
	err := s.db.WithContext(ctx).First(&lead, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return call.Lead{}, ErrNotFound
	}
	if err != nil {
		return call.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// GetLeadByCallID looks up the lead captured during a specific call.
func (s *GormStorage) GetLeadByCallID(ctx context.Context, callLogID string) (call.Lead, error) {
	var lead call.Lead
	err := s.db.WithContext(ctx).First(&lead, "call_log_id = ?", callLogID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return call.Lead{}, ErrNotFound
	}
	if err != nil {
		return call.Lead{}, fmt.Errorf("get lead by call: %w", err)
	}
	return lead, nil
}
