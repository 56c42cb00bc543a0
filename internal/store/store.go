// Package store persists accident records, claims and subrogation claims.
//
// Every mutation goes through an Update* call that serializes writers per
// key: the mutation runs on a private copy and is published only when it
// reports a change and returns no error.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
)

var (
	ErrIdempotencyConflict = errors.New("request in progress")
	ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")
)

const (
	keyInProgress = "in_progress"
	keyCompleted  = "completed"
)

// IdempotencyRecord holds the stored response for a request key.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Status         string
	ResponseBody   json.RawMessage
	ResponseStatus int
}

type (
	RecordMutation      func(*domain.AccidentRecord) (bool, error)
	ClaimMutation       func(*domain.Claim) (bool, error)
	SubrogationMutation func(*domain.SubrogationClaim) (bool, error)
)

type Store interface {
	CreateRecord(ctx context.Context, rec *domain.AccidentRecord) error
	GetRecord(ctx context.Context, id identifier.ID) (*domain.AccidentRecord, error)
	UpdateRecord(ctx context.Context, id identifier.ID, fn RecordMutation) (*domain.AccidentRecord, error)

	CreateClaim(ctx context.Context, c *domain.Claim) error
	GetClaim(ctx context.Context, id string) (*domain.Claim, error)
	UpdateClaim(ctx context.Context, id string, fn ClaimMutation) (*domain.Claim, error)
	ListClaims(ctx context.Context, accidentID identifier.ID) ([]domain.Claim, error)

	CreateSubrogation(ctx context.Context, s *domain.SubrogationClaim) error
	GetSubrogation(ctx context.Context, id string) (*domain.SubrogationClaim, error)
	UpdateSubrogation(ctx context.Context, id string, fn SubrogationMutation) (*domain.SubrogationClaim, error)
	ListSubrogations(ctx context.Context, accidentID identifier.ID) ([]domain.SubrogationClaim, error)
	// ListApprovedSubrogations returns approved claims in either direction between a and b.
	ListApprovedSubrogations(ctx context.Context, a, b string) ([]domain.SubrogationClaim, error)

	// ReserveKey returns the completed record for a replayed key, or nil
	// after reserving a fresh one.
	ReserveKey(ctx context.Context, key, requestHash string) (*IdempotencyRecord, error)
	CompleteKey(ctx context.Context, key string, status int, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}
