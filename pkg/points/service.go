package points

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
)

// Service contains the ledger logic over a Store.
type Service struct {
	store  Store
	nowFn  func() time.Time
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Append writes one entry. A second entry for the same (user, reference type,
// reference id) fails with ErrDuplicateReference and leaves the ledger unchanged.
func (service *Service) Append(ctx context.Context, actor directory.Actor, grant Grant) (Entry, error) {
	return service.appendEntry(ctx, operationAppend, actor, grant)
}

// Grant appends a manual entry; the amount must lie within [ManualAmountMin, ManualAmountMax].
func (service *Service) Grant(ctx context.Context, actor directory.Actor, userID string, amount int64, reason string, referenceID string) (Entry, error) {
	return service.appendEntry(ctx, operationGrant, actor, Grant{
		UserID:        userID,
		Amount:        amount,
		Reason:        reason,
		ReferenceType: ReferenceManual,
		ReferenceID:   referenceID,
	})
}

func (service *Service) appendEntry(ctx context.Context, operation string, actor directory.Actor, grant Grant) (Entry, error) {
	var entry Entry
	operationError := actor.Validate()
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			recorded, err := Record(ctx, transactionStore, grant, service.nowFn())
			if err != nil {
				return err
			}
			entry = recorded
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operation,
		ActorID:       actor.ID,
		UserID:        grant.UserID,
		EntryID:       entry.ID,
		Amount:        grant.Amount,
		ReferenceType: grant.ReferenceType,
		ReferenceID:   grant.ReferenceID,
		Error:         operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return entry, nil
}

// Correct appends an offsetting entry for a previous grant. Each entry can be
// corrected once; the original row is never touched.
func (service *Service) Correct(ctx context.Context, actor directory.Actor, entryID string, reason string) (Entry, error) {
	var correction Entry
	var original Entry
	operationError := actor.Validate()
	if operationError == nil && strings.TrimSpace(entryID) == "" {
		operationError = fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	if operationError == nil && strings.TrimSpace(reason) == "" {
		operationError = fmt.Errorf("%w: correction needs a reason", ErrInvalidReason)
	}
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			loaded, err := transactionStore.GetEntry(ctx, strings.TrimSpace(entryID))
			if err != nil {
				return err
			}
			original = loaded
			if original.ReferenceType == ReferenceCorrection {
				return fmt.Errorf("%w: corrections cannot be corrected", ErrInvalidReferenceType)
			}
			if original.Amount <= 0 {
				return fmt.Errorf("%w: only positive entries can be corrected", ErrInvalidAmount)
			}
			recorded, err := Record(ctx, transactionStore, Grant{
				UserID:        original.UserID,
				Amount:        -original.Amount,
				Reason:        fmt.Sprintf(correctionReasonFormat, original.ID, strings.TrimSpace(reason)),
				ReferenceType: ReferenceCorrection,
				ReferenceID:   original.ID,
			}, service.nowFn())
			if err != nil {
				return err
			}
			correction = recorded
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationCorrect,
		ActorID:       actor.ID,
		UserID:        original.UserID,
		EntryID:       correction.ID,
		Amount:        correction.Amount,
		ReferenceType: ReferenceCorrection,
		ReferenceID:   entryID,
		Error:         operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return correction, nil
}

// SumByUser returns the platform points of a user.
func (service *Service) SumByUser(ctx context.Context, userID string) (int64, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return service.store.SumByUser(ctx, trimmed)
}

// SumByUsers returns totals for many users in one read. Users without entries map to zero.
func (service *Service) SumByUsers(ctx context.Context, userIDs []string) (map[string]int64, error) {
	normalized := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		trimmed := strings.TrimSpace(userID)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: empty value", ErrInvalidUserID)
		}
		normalized = append(normalized, trimmed)
	}
	totals := make(map[string]int64, len(normalized))
	if len(normalized) == 0 {
		return totals, nil
	}
	stored, err := service.store.SumByUsers(ctx, normalized)
	if err != nil {
		return nil, err
	}
	for _, userID := range normalized {
		totals[userID] = stored[userID]
	}
	return totals, nil
}

// ListByUser returns a user's entries, newest first.
func (service *Service) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return service.store.ListByUser(ctx, trimmed)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
