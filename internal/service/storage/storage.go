package storage

import (
	"context"
	"errors"
	"time"

	"github.com/webglow/voice-support/backend/internal/model/call"
)

var ErrNotFound = errors.New("record not found")

// CallLogUpdate carries the mutable fields for a call-log PATCH.
// Nil fields are left untouched.
type CallLogUpdate struct {
	EngineCallID *string
	Duration     *int
	Status       *string
	EndedAt      *time.Time
	RecordingURL *string
	Transcript   *string
}

// Storage is the narrow repository consumed at call end and by the
// history/analytics endpoints.
type Storage interface {
	CreateCallLog(ctx context.Context, log call.Log) (call.Log, error)
	GetCallLogs(ctx context.Context) ([]call.Log, error)
	GetCallLog(ctx context.Context, id string) (call.Log, error)
	UpdateCallLog(ctx context.Context, id string, updates CallLogUpdate) (call.Log, error)
	GetCallStats(ctx context.Context) (call.Stats, error)

	CreateLead(ctx context.Context, lead call.Lead) (call.Lead, error)
	GetLeads(ctx context.Context) ([]call.Lead, error)
	GetLead(ctx context.Context, id string) (call.Lead, error)
	GetLeadByCallID(ctx context.Context, callLogID string) (call.Lead, error)
}
