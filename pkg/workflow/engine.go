package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/google/uuid"
)

// Engine runs every workflow against a Store.
type Engine struct {
	store    Store
	nowFn    func() time.Time
	policy   Policy
	logger   TransitionLogger
	machines map[Kind]transitioner
}

// NewEngine wires an Engine with the default policy unless overridden.
func NewEngine(store Store, now func() time.Time, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidEngineConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidEngineConfig)
	}
	engine := &Engine{
		store:  store,
		nowFn:  now,
		policy: DefaultPolicy(),
		machines: map[Kind]transitioner{
			KindMembership:     membershipMachine(),
			KindEvent:          eventMachine(),
			KindTaskCompletion: taskCompletionMachine(),
			KindReport:         reportMachine(),
			KindSession:        sessionMachine(),
		},
	}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	if engine.policy.MinEventPhotos < 0 {
		return nil, fmt.Errorf("%w: minimum event photos must not be negative", ErrInvalidEngineConfig)
	}
	return engine, nil
}

// Policy returns the active policy constants.
func (engine *Engine) Policy() Policy {
	return engine.policy
}

// Transition moves an entity to target. The ledger entries of the rule, the
// conditional status write and the activity entry commit together or not at all.
func (engine *Engine) Transition(ctx context.Context, kind Kind, entityID string, target Status, actor directory.Actor, metadata Metadata) (Result, error) {
	if err := actor.Validate(); err != nil {
		return Result{}, err
	}
	machine, ok := engine.machines[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	trimmedID := strings.TrimSpace(entityID)
	if trimmedID == "" {
		return Result{}, fmt.Errorf("%w: empty %s id", ErrValidation, kind)
	}
	return machine.transition(ctx, engine, transitionRequest{
		entityID: trimmedID,
		target:   Status(strings.TrimSpace(target.String())),
		actor:    actor,
		metadata: metadata,
	})
}

// TransitionMembership moves a membership to target.
func (engine *Engine) TransitionMembership(ctx context.Context, membershipID string, target Status, actor directory.Actor, metadata Metadata) (Result, error) {
	return engine.Transition(ctx, KindMembership, membershipID, target, actor, metadata)
}

// TransitionEvent moves an event to target.
func (engine *Engine) TransitionEvent(ctx context.Context, eventID string, target Status, actor directory.Actor, metadata Metadata) (Result, error) {
	return engine.Transition(ctx, KindEvent, eventID, target, actor, metadata)
}

// TransitionTaskCompletion moves a task completion to target.
func (engine *Engine) TransitionTaskCompletion(ctx context.Context, completionID string, target Status, actor directory.Actor, metadata Metadata) (Result, error) {
	return engine.Transition(ctx, KindTaskCompletion, completionID, target, actor, metadata)
}

// TransitionReport moves a report to target.
func (engine *Engine) TransitionReport(ctx context.Context, reportID string, target Status, actor directory.Actor, metadata Metadata) (Result, error) {
	return engine.Transition(ctx, KindReport, reportID, target, actor, metadata)
}

// TransitionSession moves a session to target.
func (engine *Engine) TransitionSession(ctx context.Context, sessionID string, target Status, actor directory.Actor, metadata Metadata) (Result, error) {
	return engine.Transition(ctx, KindSession, sessionID, target, actor, metadata)
}

func (engine *Engine) authorize(ctx context.Context, store Store, subject Subject, access Access, actor directory.Actor) error {
	owner := actor.Owns(subject.OwnerID())
	switch access {
	case AccessOwner:
		if owner {
			return nil
		}
	case AccessOwnerOrReviewer:
		if owner {
			return nil
		}
		fallthrough
	case AccessReviewer:
		reviewer, err := engine.reviews(ctx, store, subject.ClubID(), actor)
		if err != nil {
			return err
		}
		if reviewer {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not change %s", ErrForbidden, actor.ID, subject.SubjectID())
}

// reviews reports whether the actor reviews entities of the club: admins and
// regional leaders everywhere, ambassadors for their own club.
func (engine *Engine) reviews(ctx context.Context, store Store, clubID string, actor directory.Actor) (bool, error) {
	if actor.Role.Reviewer() {
		return true, nil
	}
	if actor.Role != directory.RoleAmbassador || clubID == "" {
		return false, nil
	}
	club, err := store.GetClub(ctx, clubID)
	if err != nil {
		return false, err
	}
	return actor.Owns(club.AmbassadorID), nil
}

func newActivity(kind Kind, entityID string, action string, actorID string, details map[string]any, createdAt time.Time) ActivityEntry {
	return ActivityEntry{
		ID:         uuid.NewString(),
		EntityType: kind,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Details:    details,
		CreatedAt:  createdAt.UTC(),
	}
}
