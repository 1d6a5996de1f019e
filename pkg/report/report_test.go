package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
)

const (
	authorID = "amb-1"
	clubA    = "club-a"
	clubB    = "club-b"
)

type stubSource struct {
	sessions       []SessionItem
	events         []EventItem
	members        []MemberItem
	entries        []points.Entry
	requestedClubs []string
	requestedFrom  time.Time
	requestedTo    time.Time
	sessionsErr    error
}

func (source *stubSource) ListConfirmedSessions(_ context.Context, clubIDs []string, from time.Time, to time.Time) ([]SessionItem, error) {
	source.requestedClubs = clubIDs
	source.requestedFrom = from
	source.requestedTo = to
	return source.sessions, source.sessionsErr
}

func (source *stubSource) ListCompletedEvents(_ context.Context, _ string, _ time.Time, _ time.Time) ([]EventItem, error) {
	return source.events, nil
}

func (source *stubSource) ListApprovedMemberships(_ context.Context, _ []string, _ time.Time, _ time.Time) ([]MemberItem, error) {
	return source.members, nil
}

func (source *stubSource) ListByUserBetween(_ context.Context, _ string, _ time.Time, _ time.Time) ([]points.Entry, error) {
	return source.entries, nil
}

func floatPointer(value float64) *float64 {
	return &value
}

func sampleSource() *stubSource {
	return &stubSource{
		sessions: []SessionItem{
			{ID: "s-1", ClubID: clubA, Title: "Weekly", PresentCount: 8, TotalCount: 10, AttendanceRate: floatPointer(80)},
			{ID: "s-2", ClubID: clubA, Title: "Weekly", PresentCount: 6, TotalCount: 10, AttendanceRate: floatPointer(60)},
			{ID: "s-3", ClubID: clubB, Title: "Kickoff"},
		},
		events: []EventItem{
			{ID: "e-1", Title: "Fair", AttendeesCount: 42, PointsValue: 30},
		},
		members: []MemberItem{
			{MembershipID: "m-1", ClubID: clubA, UserID: "u-1"},
			{MembershipID: "m-2", ClubID: clubB, UserID: "u-2"},
		},
		entries: []points.Entry{
			{ID: "p-1", UserID: authorID, Amount: 30, Reason: "event", ReferenceType: points.ReferenceEvent, ReferenceID: "e-1"},
			{ID: "p-2", UserID: authorID, Amount: 5, Reason: "member", ReferenceType: points.ReferenceMember, ReferenceID: "m-1"},
		},
	}
}

func mustBuilder(test *testing.T, source Source) *Builder {
	test.Helper()
	builder, err := NewBuilder(source)
	if err != nil {
		test.Fatalf("builder: %v", err)
	}
	return builder
}

func TestMonthRange(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		month    int
		year     int
		wantFrom time.Time
		wantTo   time.Time
		wantErr  bool
	}{
		{name: "regular month", month: 4, year: 2024, wantFrom: time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), wantTo: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)},
		{name: "december rolls the year", month: 12, year: 2023, wantFrom: time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), wantTo: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{name: "month zero", month: 0, year: 2024, wantErr: true},
		{name: "month thirteen", month: 13, year: 2024, wantErr: true},
		{name: "ancient year", month: 5, year: 1999, wantErr: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			from, to, err := MonthRange(testCase.month, testCase.year)
			if testCase.wantErr {
				if !errors.Is(err, ErrValidation) {
					test.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if !from.Equal(testCase.wantFrom) || !to.Equal(testCase.wantTo) {
				test.Fatalf("unexpected range %s - %s", from, to)
			}
		})
	}
}

func TestBuildSnapshotAggregates(test *testing.T) {
	test.Parallel()
	source := sampleSource()
	builder := mustBuilder(test, source)
	snapshot, err := builder.BuildSnapshot(context.Background(), authorID, 4, 2024, []string{clubA, " ", clubB, clubA})
	if err != nil {
		test.Fatalf("build: %v", err)
	}
	if len(source.requestedClubs) != 2 {
		test.Fatalf("expected deduplicated clubs, got %v", source.requestedClubs)
	}
	if !source.requestedFrom.Equal(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)) || !source.requestedTo.Equal(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)) {
		test.Fatalf("unexpected range %s - %s", source.requestedFrom, source.requestedTo)
	}
	summary := snapshot.Summary
	if summary.SessionsCount != 3 || summary.EventsCount != 1 || summary.NewMembersCount != 2 {
		test.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.PointsEarned != 35 || summary.TotalSessionAttendees != 14 || summary.TotalEventAttendees != 42 {
		test.Fatalf("unexpected sums: %+v", summary)
	}
	if summary.AverageAttendanceRate == nil || *summary.AverageAttendanceRate != 70 {
		test.Fatalf("expected average over rated sessions only, got %v", summary.AverageAttendanceRate)
	}
	if snapshot.Points[0].ReferenceType != "event" {
		test.Fatalf("unexpected point item: %+v", snapshot.Points[0])
	}
}

func TestBuildSnapshotIsDetachedFromSource(test *testing.T) {
	test.Parallel()
	source := sampleSource()
	builder := mustBuilder(test, source)
	snapshot, err := builder.BuildSnapshot(context.Background(), authorID, 4, 2024, []string{clubA})
	if err != nil {
		test.Fatalf("build: %v", err)
	}
	source.sessions[0].PresentCount = 0
	source.events[0].Title = "Renamed"
	if snapshot.Sessions[0].PresentCount != 8 || snapshot.Events[0].Title != "Fair" {
		test.Fatalf("snapshot must not follow later source changes")
	}
}

func TestBuildSnapshotWithoutClubsOrActivity(test *testing.T) {
	test.Parallel()
	source := &stubSource{}
	builder := mustBuilder(test, source)
	snapshot, err := builder.BuildSnapshot(context.Background(), authorID, 2, 2024, nil)
	if err != nil {
		test.Fatalf("build: %v", err)
	}
	if source.requestedClubs != nil {
		test.Fatalf("club collections must not be read without clubs")
	}
	if snapshot.Sessions == nil || snapshot.Events == nil || snapshot.Members == nil || snapshot.Points == nil {
		test.Fatalf("expected empty, non-nil arrays")
	}
	if snapshot.Summary.AverageAttendanceRate != nil {
		test.Fatalf("expected nil average without rated sessions")
	}
}

func TestBuildSnapshotValidation(test *testing.T) {
	test.Parallel()
	source := sampleSource()
	builder := mustBuilder(test, source)
	if _, err := builder.BuildSnapshot(context.Background(), authorID, 13, 2024, nil); !errors.Is(err, ErrValidation) {
		test.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := builder.BuildSnapshot(context.Background(), " ", 1, 2024, nil); !errors.Is(err, ErrInvalidActorID) {
		test.Fatalf("expected ErrInvalidActorID, got %v", err)
	}
	source.sessionsErr = errors.New("read failed")
	if _, err := builder.BuildSnapshot(context.Background(), authorID, 1, 2024, []string{clubA}); err == nil {
		test.Fatalf("expected source error")
	}
}

type stubStore struct {
	ledClubs  []string
	records   map[string]Record
	activity  []workflow.ActivityEntry
	createErr error
}

func (store *stubStore) ListLedClubIDs(_ context.Context, _ string) ([]string, error) {
	return store.ledClubs, nil
}

func (store *stubStore) CreateReport(_ context.Context, record Record, activity workflow.ActivityEntry) error {
	if store.createErr != nil {
		return store.createErr
	}
	for _, existing := range store.records {
		if existing.Report.AuthorID == record.Report.AuthorID && existing.Report.Month == record.Report.Month && existing.Report.Year == record.Report.Year {
			return workflow.ErrDuplicateSubmission
		}
	}
	store.records[record.Report.ID] = record
	store.activity = append(store.activity, activity)
	return nil
}

func (store *stubStore) GetReportRecord(_ context.Context, reportID string) (Record, error) {
	record, ok := store.records[reportID]
	if !ok {
		return Record{}, workflow.ErrReportNotFound
	}
	return record, nil
}

func mustService(test *testing.T, source Source, store Store) *Service {
	test.Helper()
	service, err := NewService(mustBuilder(test, source), store, func() time.Time {
		return time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)
	})
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	return service
}

func TestCreateReport(test *testing.T) {
	test.Parallel()
	source := sampleSource()
	store := &stubStore{ledClubs: []string{clubA}, records: map[string]Record{}}
	service := mustService(test, source, store)
	author := directory.Actor{ID: authorID, Role: directory.RoleAmbassador}

	record, err := service.Create(context.Background(), author, 4, 2024, nil)
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if record.Report.Status != workflow.StatusDraft || record.Report.AuthorID != authorID {
		test.Fatalf("unexpected report: %+v", record.Report)
	}
	if len(source.requestedClubs) != 1 || source.requestedClubs[0] != clubA {
		test.Fatalf("expected the led clubs, got %v", source.requestedClubs)
	}
	if len(store.activity) != 1 || store.activity[0].Action != actionCreate || store.activity[0].EntityID != record.Report.ID {
		test.Fatalf("unexpected activity: %+v", store.activity)
	}
	if _, err := service.Create(context.Background(), author, 4, 2024, nil); !errors.Is(err, workflow.ErrDuplicateSubmission) {
		test.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
	if _, err := service.Create(context.Background(), author, 0, 2024, nil); !errors.Is(err, ErrValidation) {
		test.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGetReportAccess(test *testing.T) {
	test.Parallel()
	store := &stubStore{ledClubs: []string{clubA}, records: map[string]Record{}}
	service := mustService(test, sampleSource(), store)
	author := directory.Actor{ID: authorID, Role: directory.RoleAmbassador}
	record, err := service.Create(context.Background(), author, 4, 2024, []string{clubA})
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if _, err := service.Get(context.Background(), author, record.Report.ID); err != nil {
		test.Fatalf("author reads: %v", err)
	}
	if _, err := service.Get(context.Background(), directory.Actor{ID: "leader", Role: directory.RoleRegionalLeader}, record.Report.ID); err != nil {
		test.Fatalf("reviewer reads: %v", err)
	}
	if _, err := service.Get(context.Background(), directory.Actor{ID: "amb-2", Role: directory.RoleAmbassador}, record.Report.ID); !errors.Is(err, workflow.ErrForbidden) {
		test.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := service.Get(context.Background(), author, "missing"); !errors.Is(err, workflow.ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateReportLimitsClubsToLeadership(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name          string
		actor         directory.Actor
		clubIDs       []string
		expectedErr   error
		expectedClubs []string
	}{
		{name: "led club", actor: directory.Actor{ID: authorID, Role: directory.RoleAmbassador}, clubIDs: []string{clubA}, expectedClubs: []string{clubA}},
		{name: "foreign club", actor: directory.Actor{ID: authorID, Role: directory.RoleAmbassador}, clubIDs: []string{clubA, clubB}, expectedErr: workflow.ErrForbidden},
		{name: "member without clubs", actor: directory.Actor{ID: "member-1", Role: directory.RoleMember}, clubIDs: []string{clubA}, expectedErr: workflow.ErrForbidden},
		{name: "reviewer picks any club", actor: directory.Actor{ID: "leader", Role: directory.RoleRegionalLeader}, clubIDs: []string{clubB}, expectedClubs: []string{clubB}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			source := sampleSource()
			ledClubs := map[string][]string{authorID: {clubA}}
			store := &stubStore{ledClubs: ledClubs[testCase.actor.ID], records: map[string]Record{}}
			service := mustService(test, source, store)
			_, err := service.Create(context.Background(), testCase.actor, 4, 2024, testCase.clubIDs)
			if testCase.expectedErr != nil {
				if !errors.Is(err, testCase.expectedErr) {
					test.Fatalf("expected %v, got %v", testCase.expectedErr, err)
				}
				if len(store.records) != 0 {
					test.Fatalf("rejected report must not be stored")
				}
				return
			}
			if err != nil {
				test.Fatalf("create: %v", err)
			}
			if len(source.requestedClubs) != len(testCase.expectedClubs) || source.requestedClubs[0] != testCase.expectedClubs[0] {
				test.Fatalf("expected clubs %v, got %v", testCase.expectedClubs, source.requestedClubs)
			}
		})
	}
}
