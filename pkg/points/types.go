package points

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferenceType tags the entity that triggered a grant.
type ReferenceType string

const (
	ReferenceSession    ReferenceType = "session"
	ReferenceEvent      ReferenceType = "event"
	ReferenceMember     ReferenceType = "member"
	ReferenceTask       ReferenceType = "task"
	ReferenceReport     ReferenceType = "report"
	ReferenceManual     ReferenceType = "manual"
	ReferenceNone       ReferenceType = "none"
	ReferenceCorrection ReferenceType = "correction"
)

// ParseReferenceType validates a stored or requested reference type.
func ParseReferenceType(raw string) (ReferenceType, error) {
	switch referenceType := ReferenceType(strings.TrimSpace(raw)); referenceType {
	case ReferenceSession, ReferenceEvent, ReferenceMember, ReferenceTask, ReferenceReport,
		ReferenceManual, ReferenceNone, ReferenceCorrection:
		return referenceType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReferenceType, raw)
	}
}

// String returns the stored representation.
func (referenceType ReferenceType) String() string {
	return string(referenceType)
}

// RequiresReferenceID reports whether entries of this type must point at an entity.
// Every such type is unique per (user, type, id).
func (referenceType ReferenceType) RequiresReferenceID() bool {
	switch referenceType {
	case ReferenceManual, ReferenceNone:
		return false
	default:
		return true
	}
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	ID            string
	UserID        string
	Amount        int64
	Reason        string
	ReferenceType ReferenceType
	// ReferenceID is empty when the entry points at nothing.
	ReferenceID string
	CreatedAt   time.Time
}

// Grant describes a ledger write before it is stamped with an id and time.
type Grant struct {
	UserID        string
	Amount        int64
	Reason        string
	ReferenceType ReferenceType
	ReferenceID   string
}

// Validate checks the grant against the ledger rules.
func (grant Grant) Validate() error {
	if strings.TrimSpace(grant.UserID) == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if strings.TrimSpace(grant.Reason) == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidReason)
	}
	if _, err := ParseReferenceType(grant.ReferenceType.String()); err != nil {
		return err
	}
	if grant.ReferenceType.RequiresReferenceID() && strings.TrimSpace(grant.ReferenceID) == "" {
		return fmt.Errorf("%w: %s entries need a reference id", ErrInvalidReferenceID, grant.ReferenceType)
	}
	switch grant.ReferenceType {
	case ReferenceManual:
		if grant.Amount < ManualAmountMin || grant.Amount > ManualAmountMax {
			return fmt.Errorf("%w: manual amount must be within [%d, %d]", ErrInvalidAmount, ManualAmountMin, ManualAmountMax)
		}
	case ReferenceCorrection:
		if grant.Amount >= 0 {
			return fmt.Errorf("%w: correction must be negative", ErrInvalidAmount)
		}
	default:
		if grant.Amount <= 0 {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
		}
	}
	return nil
}

// NewEntry validates a grant and stamps it.
func NewEntry(grant Grant, createdAt time.Time) (Entry, error) {
	if err := grant.Validate(); err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:            uuid.NewString(),
		UserID:        strings.TrimSpace(grant.UserID),
		Amount:        grant.Amount,
		Reason:        strings.TrimSpace(grant.Reason),
		ReferenceType: grant.ReferenceType,
		ReferenceID:   strings.TrimSpace(grant.ReferenceID),
		CreatedAt:     createdAt.UTC(),
	}, nil
}

// Store is the persistence contract used by Service.
// Implementations must reject a second entry for the same
// (user_id, reference_type, reference_id) with ErrDuplicateReference.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	InsertEntry(ctx context.Context, entry Entry) error
	GetEntry(ctx context.Context, entryID string) (Entry, error)
	SumByUser(ctx context.Context, userID string) (int64, error)
	SumByUsers(ctx context.Context, userIDs []string) (map[string]int64, error)
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
	ListByUserBetween(ctx context.Context, userID string, from time.Time, to time.Time) ([]Entry, error)
}

// Record validates a grant and inserts it through the given store.
// Workflows call it with their transactional store so the entry commits with the state change.
func Record(ctx context.Context, store Store, grant Grant, createdAt time.Time) (Entry, error) {
	entry, err := NewEntry(grant, createdAt)
	if err != nil {
		return Entry{}, err
	}
	if err := store.InsertEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
