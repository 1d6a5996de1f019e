package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

func proposeApprovedEvent(test *testing.T, engine *Engine, pointsValue int64) Event {
	test.Helper()
	ambassador := mustActor(test, ambassadorID, directory.RoleAmbassador)
	leader := mustActor(test, leaderID, directory.RoleRegionalLeader)
	event, err := engine.ProposeEvent(context.Background(), ambassador, EventDraft{
		ClubID:      clubID,
		Title:       "Robot fair",
		StartsAt:    time.Date(2024, time.May, 20, 16, 0, 0, 0, time.UTC),
		PointsValue: pointsValue,
	})
	if err != nil {
		test.Fatalf("propose: %v", err)
	}
	if _, err := engine.TransitionEvent(context.Background(), event.ID, StatusApproved, leader, Metadata{}); err != nil {
		test.Fatalf("approve: %v", err)
	}
	return event
}

func TestEventCompletionNeedsPhotos(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	engine := mustNewEngine(test, store, WithPolicy(Policy{MinEventPhotos: 3, MembershipPoints: 5, EventAttendeePoints: 2}))
	event := proposeApprovedEvent(test, engine, 40)
	leader := mustActor(test, leaderID, directory.RoleRegionalLeader)

	_, err := engine.TransitionEvent(context.Background(), event.ID, StatusCompleted, leader, Metadata{AttendeesCount: intPointer(42)})
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInsufficientPhotos) {
		test.Fatalf("expected photo validation error, got %v", err)
	}
	if store.state.events[event.ID].Status != StatusApproved || len(store.state.entries) != 0 {
		test.Fatalf("expected approved event and empty ledger")
	}

	result, err := engine.TransitionEvent(context.Background(), event.ID, StatusCompleted, leader, Metadata{
		AttendeesCount: intPointer(42),
		PhotoRefs:      []string{"photo-1", "photo-2", "photo-3"},
		AttendeeIDs:    []string{memberID, secondMember, ambassadorID, memberID},
	})
	if err != nil {
		test.Fatalf("complete: %v", err)
	}
	if len(result.Entries) != 3 {
		test.Fatalf("expected organizer plus two attendees, got %+v", result.Entries)
	}
	for _, entry := range result.Entries {
		if entry.ReferenceType != points.ReferenceEvent || entry.ReferenceID != event.ID {
			test.Fatalf("unexpected reference on %+v", entry)
		}
	}
	if store.sum(ambassadorID) != 40 || store.sum(memberID) != 2 || store.sum(secondMember) != 2 {
		test.Fatalf("unexpected totals %d %d %d", store.sum(ambassadorID), store.sum(memberID), store.sum(secondMember))
	}
	completed := store.state.events[event.ID]
	if completed.AttendeesCount == nil || *completed.AttendeesCount != 42 || len(completed.PhotoRefs) != 3 || completed.CompletedAt == nil {
		test.Fatalf("expected completion evidence stored, got %+v", completed)
	}
}

func TestEventCompletionNeedsAttendeeCount(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	engine := mustNewEngine(test, store)
	event := proposeApprovedEvent(test, engine, 10)
	admin := mustActor(test, adminID, directory.RoleAdmin)
	photos := []string{"a", "b", "c"}

	if _, err := engine.TransitionEvent(context.Background(), event.ID, StatusCompleted, admin, Metadata{PhotoRefs: photos}); !errors.Is(err, ErrMissingAttendeeCount) {
		test.Fatalf("expected ErrMissingAttendeeCount, got %v", err)
	}
	if _, err := engine.TransitionEvent(context.Background(), event.ID, StatusCompleted, admin, Metadata{PhotoRefs: photos, AttendeesCount: intPointer(-1)}); !errors.Is(err, ErrValidation) {
		test.Fatalf("expected ErrValidation, got %v", err)
	}
	result, err := engine.TransitionEvent(context.Background(), event.ID, StatusCompleted, admin, Metadata{PhotoRefs: photos, AttendeesCount: intPointer(0)})
	if err != nil {
		test.Fatalf("zero attendees is valid: %v", err)
	}
	if len(result.Entries) != 1 {
		test.Fatalf("attendee points are off by default, got %d entries", len(result.Entries))
	}
}

func TestEventRejectionAndCancellationNeedReason(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	engine := mustNewEngine(test, store)
	ambassador := mustActor(test, ambassadorID, directory.RoleAmbassador)
	admin := mustActor(test, adminID, directory.RoleAdmin)

	pending, err := engine.ProposeEvent(context.Background(), ambassador, EventDraft{ClubID: clubID, Title: "Hack night"})
	if err != nil {
		test.Fatalf("propose: %v", err)
	}
	if _, err := engine.TransitionEvent(context.Background(), pending.ID, StatusRejected, admin, Metadata{Reason: "  "}); !errors.Is(err, ErrReasonRequired) {
		test.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if _, err := engine.TransitionEvent(context.Background(), pending.ID, StatusRejected, admin, Metadata{Reason: "venue closed"}); err != nil {
		test.Fatalf("reject: %v", err)
	}

	approved := proposeApprovedEvent(test, engine, 10)
	if _, err := engine.TransitionEvent(context.Background(), approved.ID, StatusCancelled, ambassador, Metadata{}); !errors.Is(err, ErrReasonRequired) {
		test.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if _, err := engine.TransitionEvent(context.Background(), approved.ID, StatusCancelled, ambassador, Metadata{Reason: "speaker ill"}); err != nil {
		test.Fatalf("organizer cancels: %v", err)
	}
	if store.state.events[approved.ID].Reason != "speaker ill" {
		test.Fatalf("expected cancellation reason stored")
	}
}

func TestProposeEventValidatesDraft(test *testing.T) {
	test.Parallel()
	engine := mustNewEngine(test, newMemoryStore(test))
	member := mustActor(test, memberID, directory.RoleMember)
	testCases := []struct {
		name  string
		draft EventDraft
		want  error
	}{
		{name: "empty title", draft: EventDraft{ClubID: clubID}, want: ErrInvalidDraft},
		{name: "negative points", draft: EventDraft{ClubID: clubID, Title: "x", PointsValue: -1}, want: ErrInvalidDraft},
		{name: "unknown club", draft: EventDraft{ClubID: "nope", Title: "x"}, want: ErrClubNotFound},
	}
	for _, testCase := range testCases {
		if _, err := engine.ProposeEvent(context.Background(), member, testCase.draft); !errors.Is(err, testCase.want) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.want, err)
		}
	}
}
