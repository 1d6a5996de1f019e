package workflow

import (
	"context"
	"testing"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
)

type recorderLogger struct {
	entries []TransitionLog
}

func (logger *recorderLogger) LogTransition(_ context.Context, entry TransitionLog) {
	logger.entries = append(logger.entries, entry)
}

func TestEngineLogsOperations(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	logger := &recorderLogger{}
	engine := mustNewEngine(test, store, WithTransitionLogger(logger))
	member := mustActor(test, memberID, directory.RoleMember)
	ambassador := mustActor(test, ambassadorID, directory.RoleAmbassador)

	membership, err := engine.RequestMembership(context.Background(), member, clubID, "", "")
	if err != nil {
		test.Fatalf("request: %v", err)
	}
	if _, err := engine.TransitionMembership(context.Background(), membership.ID, StatusApproved, ambassador, Metadata{}); err == nil {
		test.Fatalf("expected missing evidence")
	}
	if len(logger.entries) != 2 {
		test.Fatalf("expected two log entries, got %d", len(logger.entries))
	}
	created, failed := logger.entries[0], logger.entries[1]
	if created.Action != actionCreate || created.Status != operationStatusOK || created.EntityID != membership.ID {
		test.Fatalf("unexpected creation log: %+v", created)
	}
	if failed.Action != actionApprove || failed.Status != operationStatusError || failed.Error == nil || failed.From != StatusPending {
		test.Fatalf("unexpected failure log: %+v", failed)
	}
}

func TestNewEngineRejectsMissingDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewEngine(nil, nil); err == nil {
		test.Fatalf("expected error for nil store")
	}
	if _, err := NewEngine(newMemoryStore(test), nil); err == nil {
		test.Fatalf("expected error for nil clock")
	}
}
