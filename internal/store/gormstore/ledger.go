package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
	"gorm.io/gorm"
)

type userSum struct {
	UserID string
	Total  int64
}

// InsertEntry appends a point entry. A repeated (user, reference type,
// reference id) triple fails with points.ErrDuplicateReference.
func (store *Store) InsertEntry(ctx context.Context, entry points.Entry) error {
	model := PointEntry{
		ID:            entry.ID,
		UserID:        entry.UserID,
		Amount:        entry.Amount,
		Reason:        entry.Reason,
		ReferenceType: entry.ReferenceType.String(),
		ReferenceID:   nullableString(entry.ReferenceID),
		CreatedAt:     entry.CreatedAt.UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintPointReference) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, points.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetEntry(ctx context.Context, entryID string) (points.Entry, error) {
	var model PointEntry
	err := store.db.WithContext(ctx).Where("id = ?", entryID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return points.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, points.ErrEntryNotFound)
	}
	if err != nil {
		return points.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return mapPointEntry(model), nil
}

// SumByUser totals the user's entries in the database.
func (store *Store) SumByUser(ctx context.Context, userID string) (int64, error) {
	var sum userSum
	err := store.db.WithContext(ctx).
		Model(&PointEntry{}).
		Select("coalesce(sum(amount),0) as total").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectSum, errorCodeGet, err)
	}
	return sum.Total, nil
}

// SumByUsers totals many users in one grouped query. Users without entries are absent.
func (store *Store) SumByUsers(ctx context.Context, userIDs []string) (map[string]int64, error) {
	totals := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return totals, nil
	}
	var rows []userSum
	err := store.db.WithContext(ctx).
		Model(&PointEntry{}).
		Select("user_id, coalesce(sum(amount),0) as total").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSum, errorCodeList, err)
	}
	for _, row := range rows {
		totals[row.UserID] = row.Total
	}
	return totals, nil
}

// ListByUser returns the user's entries, newest first.
func (store *Store) ListByUser(ctx context.Context, userID string) ([]points.Entry, error) {
	return listEntries(store.db.WithContext(ctx).Where("user_id = ?", userID))
}

// ListByUserBetween returns the user's entries created in [from, to), newest first.
func (store *Store) ListByUserBetween(ctx context.Context, userID string, from time.Time, to time.Time) ([]points.Entry, error) {
	return listEntries(store.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from.UTC(), to.UTC()))
}

func listEntries(query *gorm.DB) ([]points.Entry, error) {
	var rows []PointEntry
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]points.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mapPointEntry(row))
	}
	return entries, nil
}

func mapPointEntry(row PointEntry) points.Entry {
	return points.Entry{
		ID:            row.ID,
		UserID:        row.UserID,
		Amount:        row.Amount,
		Reason:        row.Reason,
		ReferenceType: points.ReferenceType(row.ReferenceType),
		ReferenceID:   stringOrEmpty(row.ReferenceID),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}
