package points

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
)

// memoryStore mimics the unique (user, reference type, reference id) index.
type memoryStore struct {
	entries          []Entry
	insertEntryError error
	sumError         error
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{}
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	snapshot := append([]Entry(nil), store.entries...)
	if err := fn(ctx, store); err != nil {
		store.entries = snapshot
		return err
	}
	return nil
}

func (store *memoryStore) InsertEntry(_ context.Context, entry Entry) error {
	if store.insertEntryError != nil {
		return store.insertEntryError
	}
	if entry.ReferenceID != "" {
		for _, existing := range store.entries {
			if existing.UserID == entry.UserID && existing.ReferenceType == entry.ReferenceType && existing.ReferenceID == entry.ReferenceID {
				return WrapError("store", "entry", "duplicate", ErrDuplicateReference)
			}
		}
	}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *memoryStore) GetEntry(_ context.Context, entryID string) (Entry, error) {
	for _, entry := range store.entries {
		if entry.ID == entryID {
			return entry, nil
		}
	}
	return Entry{}, WrapError("store", "entry", "get", ErrEntryNotFound)
}

func (store *memoryStore) SumByUser(_ context.Context, userID string) (int64, error) {
	if store.sumError != nil {
		return 0, store.sumError
	}
	var total int64
	for _, entry := range store.entries {
		if entry.UserID == userID {
			total += entry.Amount
		}
	}
	return total, nil
}

func (store *memoryStore) SumByUsers(ctx context.Context, userIDs []string) (map[string]int64, error) {
	totals := make(map[string]int64, len(userIDs))
	for _, userID := range userIDs {
		total, err := store.SumByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if total != 0 {
			totals[userID] = total
		}
	}
	return totals, nil
}

func (store *memoryStore) ListByUser(_ context.Context, userID string) ([]Entry, error) {
	var entries []Entry
	for _, entry := range store.entries {
		if entry.UserID == userID {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(left, right int) bool {
		return entries[left].CreatedAt.After(entries[right].CreatedAt)
	})
	return entries, nil
}

func (store *memoryStore) ListByUserBetween(ctx context.Context, userID string, from time.Time, to time.Time) ([]Entry, error) {
	all, err := store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, entry := range all {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type tickingClock struct {
	current time.Time
}

func (clock *tickingClock) Now() time.Time {
	clock.current = clock.current.Add(time.Minute)
	return clock.current
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	clock := &tickingClock{current: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)}
	service, err := NewService(store, clock.Now, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustActor(test *testing.T, id string, role directory.Role) directory.Actor {
	test.Helper()
	actor, err := directory.NewActor(id, role)
	if err != nil {
		test.Fatalf("actor: %v", err)
	}
	return actor
}
