package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webglow/voice-support/backend/internal/model/call"
)

// MemoryStorage keeps call logs and leads in process memory. It backs the
// service whenever DATABASE_URL is absent; history disappears on restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	callLogs []call.Log
	leads    []call.Lead
}

// NewMemoryStorage bootstraps the in-memory repository.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// CreateCallLog stores a completed call, filling id and start time when absent.
func (s *MemoryStorage) CreateCallLog(_ context.Context, logEntry call.Log) (call.Log, error) {
	if logEntry.ID == "" {
		logEntry.ID = uuid.NewString()
	}
	if logEntry.StartedAt.IsZero() {
		logEntry.StartedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.callLogs = append(s.callLogs, logEntry)
	s.mu.Unlock()

	return logEntry, nil
}

// GetCallLogs returns call logs newest first.
func (s *MemoryStorage) GetCallLogs(_ context.Context) ([]call.Log, error) {
	s.mu.RLock()
	copied := make([]call.Log, len(s.callLogs))
	copy(copied, s.callLogs)
	s.mu.RUnlock()

	sort.Slice(copied, func(i, j int) bool {
		return copied[i].StartedAt.After(copied[j].StartedAt)
	})
	return copied, nil
}

// GetCallLog looks up a call log by identifier.
func (s *MemoryStorage) GetCallLog(_ context.Context, id string) (call.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, logEntry := range s.callLogs {
		if logEntry.ID == id {
			return logEntry, nil
		}
	}
	return call.Log{}, ErrNotFound
}

// UpdateCallLog applies the non-nil fields of updates to an existing log.
func (s *MemoryStorage) UpdateCallLog(_ context.Context, id string, updates CallLogUpdate) (call.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.callLogs {
		if s.callLogs[i].ID != id {
			continue
		}
		applyCallLogUpdate(&s.callLogs[i], updates)
		return s.callLogs[i], nil
	}
	return call.Log{}, ErrNotFound
}

// GetCallStats aggregates the stored call history.
func (s *MemoryStorage) GetCallStats(_ context.Context) (call.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := call.Stats{TotalCalls: len(s.callLogs)}
	for _, logEntry := range s.callLogs {
		stats.TotalDuration += logEntry.Duration
		if logEntry.Status == "completed" {
			stats.CompletedCalls++
		}
	}
	if stats.TotalCalls > 0 {
		stats.AvgDuration = stats.TotalDuration / stats.TotalCalls
	}
	return stats, nil
}

// CreateLead stores a captured lead.
func (s *MemoryStorage) CreateLead(_ context.Context, lead call.Lead) (call.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.leads = append(s.leads, lead)
	s.mu.Unlock()

	return lead, nil
}

// GetLeads returns leads newest first.
func (s *MemoryStorage) GetLeads(_ context.Context) ([]call.Lead, error) {
	s.mu.RLock()
	copied := make([]call.Lead, len(s.leads))
	copy(copied, s.leads)
	s.mu.RUnlock()

	sort.Slice(copied, func(i, j int) bool {
		return copied[i].CreatedAt.After(copied[j].CreatedAt)
	})
	return copied, nil
}

// GetLead looks up a lead by identifier.
func (s *MemoryStorage) GetLead(_ context.Context, id string) (call.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lead := range s.leads {
		if lead.ID == id {
			return lead, nil
		}
	}
	return call.Lead{}, ErrNotFound
}

// GetLeadByCallID looks up the lead captured during a specific call.
func (s *MemoryStorage) GetLeadByCallID(_ context.Context, callLogID string) (call.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lead := range s.leads {
		if lead.CallLogID != nil && *lead.CallLogID == callLogID {
			return lead, nil
		}
	}
	return call.Lead{}, ErrNotFound
}

func applyCallLogUpdate(logEntry *call.Log, updates CallLogUpdate) {
	if updates.EngineCallID != nil {
		logEntry.EngineCallID = updates.EngineCallID
	}
	if updates.Duration != nil {
		logEntry.Duration = *updates.Duration
	}
	if updates.Status != nil {
		logEntry.Status = *updates.Status
	}
	if updates.EndedAt != nil {
		logEntry.EndedAt = updates.EndedAt
	}
	if updates.RecordingURL != nil {
		logEntry.RecordingURL = updates.RecordingURL
	}
	if updates.Transcript != nil {
		logEntry.Transcript = updates.Transcript
	}
}
