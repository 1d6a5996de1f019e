package workflow

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

const (
	adminID      = "admin-1"
	leaderID     = "leader-1"
	ambassadorID = "amb-1"
	otherAmbID   = "amb-2"
	memberID     = "member-1"
	secondMember = "member-2"
	clubID       = "club-1"
	otherClubID  = "club-2"
	orphanClubID = "club-3"
	regionID     = "region-1"
)

type memoryState struct {
	users       map[string]directory.User
	clubs       map[string]directory.Club
	memberships map[string]Membership
	events      map[string]Event
	tasks       map[string]Task
	completions map[string]TaskCompletion
	reports     map[string]Report
	sessions    map[string]Session
	attendance  map[string]SessionAttendance
	entries     []points.Entry
	activity    []ActivityEntry
}

func (state memoryState) clone() memoryState {
	return memoryState{
		users:       cloneMap(state.users),
		clubs:       cloneMap(state.clubs),
		memberships: cloneMap(state.memberships),
		events:      cloneMap(state.events),
		tasks:       cloneMap(state.tasks),
		completions: cloneMap(state.completions),
		reports:     cloneMap(state.reports),
		sessions:    cloneMap(state.sessions),
		attendance:  cloneMap(state.attendance),
		entries:     append([]points.Entry(nil), state.entries...),
		activity:    append([]ActivityEntry(nil), state.activity...),
	}
}

func cloneMap[V any](source map[string]V) map[string]V {
	cloned := make(map[string]V, len(source))
	for key, value := range source {
		cloned[key] = value
	}
	return cloned
}

// memoryStore serializes transactions and restores the previous state when fn fails.
type memoryStore struct {
	mutex         sync.Mutex
	state         memoryState
	activityError error
	staleUpdates  map[string]bool
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	store := &memoryStore{
		state: memoryState{
			users:       map[string]directory.User{},
			clubs:       map[string]directory.Club{},
			memberships: map[string]Membership{},
			events:      map[string]Event{},
			tasks:       map[string]Task{},
			completions: map[string]TaskCompletion{},
			reports:     map[string]Report{},
			sessions:    map[string]Session{},
			attendance:  map[string]SessionAttendance{},
		},
		staleUpdates: map[string]bool{},
	}
	for _, user := range []directory.User{
		{ID: adminID, Name: "Ada", Role: directory.RoleAdmin},
		{ID: leaderID, Name: "Lea", Role: directory.RoleRegionalLeader, RegionID: regionID},
		{ID: ambassadorID, Name: "Amos", Role: directory.RoleAmbassador, RegionID: regionID},
		{ID: otherAmbID, Name: "Bea", Role: directory.RoleAmbassador, RegionID: regionID},
		{ID: memberID, Name: "Mia", Role: directory.RoleMember, RegionID: regionID},
		{ID: secondMember, Name: "Max", Role: directory.RoleMember, RegionID: regionID},
	} {
		store.state.users[user.ID] = user
	}
	store.state.clubs[clubID] = directory.Club{ID: clubID, Name: "Robotics", RegionID: regionID, AmbassadorID: ambassadorID}
	store.state.clubs[otherClubID] = directory.Club{ID: otherClubID, Name: "Chess", RegionID: regionID, AmbassadorID: otherAmbID}
	store.state.clubs[orphanClubID] = directory.Club{ID: orphanClubID, Name: "Drama", RegionID: regionID}
	return store
}

func (store *memoryStore) InTransaction(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	snapshot := store.state.clone()
	if err := fn(ctx, store); err != nil {
		store.state = snapshot
		return err
	}
	return nil
}

func (store *memoryStore) Ledger() points.Store {
	return memoryLedger{store: store}
}

func (store *memoryStore) GetUser(_ context.Context, userID string) (directory.User, error) {
	user, ok := store.state.users[userID]
	if !ok {
		return directory.User{}, ErrUserNotFound
	}
	return user, nil
}

func (store *memoryStore) GetClub(_ context.Context, clubID string) (directory.Club, error) {
	club, ok := store.state.clubs[clubID]
	if !ok {
		return directory.Club{}, ErrClubNotFound
	}
	return club, nil
}

func liveMembership(status Status) bool {
	return status == StatusPending || status == StatusApproved
}

func (store *memoryStore) membershipConflict(membership Membership) bool {
	if !liveMembership(membership.Status) {
		return false
	}
	for _, existing := range store.state.memberships {
		if existing.ID != membership.ID && existing.Club == membership.Club && existing.UserID == membership.UserID && liveMembership(existing.Status) {
			return true
		}
	}
	return false
}

func (store *memoryStore) InsertMembership(_ context.Context, membership Membership) error {
	if store.membershipConflict(membership) {
		return ErrDuplicateSubmission
	}
	store.state.memberships[membership.ID] = membership
	return nil
}

func (store *memoryStore) GetMembership(_ context.Context, membershipID string) (Membership, error) {
	membership, ok := store.state.memberships[membershipID]
	if !ok {
		return Membership{}, ErrMembershipNotFound
	}
	return membership, nil
}

func (store *memoryStore) UpdateMembership(_ context.Context, membership Membership, from Status) (bool, error) {
	current, ok := store.state.memberships[membership.ID]
	if !ok || current.Status != from || store.staleUpdates[membership.ID] {
		return false, nil
	}
	if store.membershipConflict(membership) {
		return false, ErrDuplicateSubmission
	}
	store.state.memberships[membership.ID] = membership
	return true, nil
}

func (store *memoryStore) InsertEvent(_ context.Context, event Event) error {
	store.state.events[event.ID] = event
	return nil
}

func (store *memoryStore) GetEvent(_ context.Context, eventID string) (Event, error) {
	event, ok := store.state.events[eventID]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return event, nil
}

func (store *memoryStore) UpdateEvent(_ context.Context, event Event, from Status) (bool, error) {
	current, ok := store.state.events[event.ID]
	if !ok || current.Status != from || store.staleUpdates[event.ID] {
		return false, nil
	}
	store.state.events[event.ID] = event
	return true, nil
}

func (store *memoryStore) InsertTask(_ context.Context, task Task) error {
	store.state.tasks[task.ID] = task
	return nil
}

func (store *memoryStore) GetTask(_ context.Context, taskID string) (Task, error) {
	task, ok := store.state.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (store *memoryStore) completionConflict(completion TaskCompletion) bool {
	if completion.Status != StatusPending {
		return false
	}
	for _, existing := range store.state.completions {
		if existing.ID != completion.ID && existing.TaskID == completion.TaskID && existing.UserID == completion.UserID && existing.Status == StatusPending {
			return true
		}
	}
	return false
}

func (store *memoryStore) InsertTaskCompletion(_ context.Context, completion TaskCompletion) error {
	if store.completionConflict(completion) {
		return ErrDuplicateSubmission
	}
	store.state.completions[completion.ID] = completion
	return nil
}

func (store *memoryStore) GetTaskCompletion(_ context.Context, completionID string) (TaskCompletion, error) {
	completion, ok := store.state.completions[completionID]
	if !ok {
		return TaskCompletion{}, ErrTaskCompletionNotFound
	}
	return completion, nil
}

func (store *memoryStore) UpdateTaskCompletion(_ context.Context, completion TaskCompletion, from Status) (bool, error) {
	current, ok := store.state.completions[completion.ID]
	if !ok || current.Status != from || store.staleUpdates[completion.ID] {
		return false, nil
	}
	if store.completionConflict(completion) {
		return false, ErrDuplicateSubmission
	}
	store.state.completions[completion.ID] = completion
	return true, nil
}

func (store *memoryStore) CountTaskCompletions(_ context.Context, taskID string, userID string, status Status) (int64, error) {
	var count int64
	for _, completion := range store.state.completions {
		if completion.TaskID == taskID && completion.UserID == userID && completion.Status == status {
			count++
		}
	}
	return count, nil
}

func (store *memoryStore) GetReport(_ context.Context, reportID string) (Report, error) {
	report, ok := store.state.reports[reportID]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	return report, nil
}

func (store *memoryStore) UpdateReport(_ context.Context, report Report, from Status) (bool, error) {
	current, ok := store.state.reports[report.ID]
	if !ok || current.Status != from || store.staleUpdates[report.ID] {
		return false, nil
	}
	store.state.reports[report.ID] = report
	return true, nil
}

func (store *memoryStore) InsertSession(_ context.Context, session Session) error {
	store.state.sessions[session.ID] = session
	return nil
}

func (store *memoryStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	session, ok := store.state.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (store *memoryStore) UpdateSession(_ context.Context, session Session, from Status) (bool, error) {
	current, ok := store.state.sessions[session.ID]
	if !ok || current.Status != from || store.staleUpdates[session.ID] {
		return false, nil
	}
	store.state.sessions[session.ID] = session
	return true, nil
}

func (store *memoryStore) UpsertAttendance(_ context.Context, attendance SessionAttendance) error {
	store.state.attendance[attendance.SessionID+"|"+attendance.UserID] = attendance
	return nil
}

func (store *memoryStore) ListAttendance(_ context.Context, sessionID string) ([]SessionAttendance, error) {
	var records []SessionAttendance
	for _, record := range store.state.attendance {
		if record.SessionID == sessionID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(left, right int) bool {
		return records[left].UserID < records[right].UserID
	})
	return records, nil
}

func (store *memoryStore) AppendActivity(_ context.Context, entry ActivityEntry) error {
	if store.activityError != nil {
		return store.activityError
	}
	store.state.activity = append(store.state.activity, entry)
	return nil
}

func (store *memoryStore) sum(userID string) int64 {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var total int64
	for _, entry := range store.state.entries {
		if entry.UserID == userID {
			total += entry.Amount
		}
	}
	return total
}

// memoryLedger writes into the state of the surrounding transaction.
type memoryLedger struct {
	store *memoryStore
}

func (ledger memoryLedger) WithTx(ctx context.Context, fn func(ctx context.Context, txStore points.Store) error) error {
	return fn(ctx, ledger)
}

func (ledger memoryLedger) InsertEntry(_ context.Context, entry points.Entry) error {
	for _, existing := range ledger.store.state.entries {
		if entry.ReferenceID != "" && existing.UserID == entry.UserID && existing.ReferenceType == entry.ReferenceType && existing.ReferenceID == entry.ReferenceID {
			return points.WrapError("store", "entry", "duplicate", points.ErrDuplicateReference)
		}
	}
	ledger.store.state.entries = append(ledger.store.state.entries, entry)
	return nil
}

func (ledger memoryLedger) GetEntry(_ context.Context, entryID string) (points.Entry, error) {
	for _, entry := range ledger.store.state.entries {
		if entry.ID == entryID {
			return entry, nil
		}
	}
	return points.Entry{}, points.ErrEntryNotFound
}

func (ledger memoryLedger) SumByUser(_ context.Context, userID string) (int64, error) {
	var total int64
	for _, entry := range ledger.store.state.entries {
		if entry.UserID == userID {
			total += entry.Amount
		}
	}
	return total, nil
}

func (ledger memoryLedger) SumByUsers(ctx context.Context, userIDs []string) (map[string]int64, error) {
	totals := make(map[string]int64, len(userIDs))
	for _, userID := range userIDs {
		totals[userID], _ = ledger.SumByUser(ctx, userID)
	}
	return totals, nil
}

func (ledger memoryLedger) ListByUser(_ context.Context, userID string) ([]points.Entry, error) {
	var entries []points.Entry
	for _, entry := range ledger.store.state.entries {
		if entry.UserID == userID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (ledger memoryLedger) ListByUserBetween(ctx context.Context, userID string, from time.Time, to time.Time) ([]points.Entry, error) {
	all, _ := ledger.ListByUser(ctx, userID)
	var entries []points.Entry
	for _, entry := range all {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type fixedClock struct {
	mutex   sync.Mutex
	current time.Time
}

func (clock *fixedClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(time.Second)
	return clock.current
}

func mustNewEngine(test *testing.T, store Store, options ...EngineOption) *Engine {
	test.Helper()
	clock := &fixedClock{current: time.Date(2024, time.May, 6, 10, 0, 0, 0, time.UTC)}
	engine, err := NewEngine(store, clock.Now, options...)
	if err != nil {
		test.Fatalf("engine init failed: %v", err)
	}
	return engine
}

func mustActor(test *testing.T, id string, role directory.Role) directory.Actor {
	test.Helper()
	actor, err := directory.NewActor(id, role)
	if err != nil {
		test.Fatalf("actor: %v", err)
	}
	return actor
}

func intPointer(value int) *int {
	return &value
}
