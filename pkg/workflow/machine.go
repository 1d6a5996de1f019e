package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

// Access names who may fire a rule.
type Access int

const (
	// AccessReviewer admits admins, regional leaders and the ambassador of the entity's club.
	AccessReviewer Access = iota
	// AccessOwner admits the entity's owner only.
	AccessOwner
	// AccessOwnerOrReviewer admits both.
	AccessOwnerOrReviewer
)

// Change is the context a rule runs with.
type Change struct {
	Actor    directory.Actor
	Metadata Metadata
	From     Status
	To       Status
	At       time.Time
	Policy   Policy
}

// Rule is one edge of a state table.
type Rule[S Subject] struct {
	Action string
	Access Access
	// Guard rejects the transition before anything is written.
	Guard func(ctx context.Context, store Store, subject S, change Change) error
	// Apply mutates the loaded subject ahead of the conditional write.
	Apply func(ctx context.Context, store Store, subject S, change Change) error
	// Grants lists the ledger entries the transition pays out.
	Grants func(ctx context.Context, store Store, subject S, change Change) ([]points.Grant, error)
}

// Machine drives one entity type through its state table.
type Machine[S Subject] struct {
	kind  Kind
	rules map[Status]map[Status]Rule[S]
	load  func(ctx context.Context, store Store, entityID string) (S, error)
	save  func(ctx context.Context, store Store, subject S, from Status) (bool, error)
}

// Rule returns the rule for the edge from -> to.
func (machine *Machine[S]) Rule(from Status, to Status) (Rule[S], bool) {
	targets, ok := machine.rules[from]
	if !ok {
		return Rule[S]{}, false
	}
	rule, ok := targets[to]
	return rule, ok
}

// Targets lists the statuses reachable from the given one in name order.
func (machine *Machine[S]) Targets(from Status) []Status {
	var targets []Status
	for target := range machine.rules[from] {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(left, right int) bool {
		return targets[left] < targets[right]
	})
	return targets
}

func (machine *Machine[S]) invalidTransition(from Status, to Status) error {
	targets := machine.Targets(from)
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s %s -> %s (%s is final)", ErrInvalidTransition, machine.kind, from, to, from)
	}
	names := make([]string, 0, len(targets))
	for _, target := range targets {
		names = append(names, target.String())
	}
	return fmt.Errorf("%w: %s %s -> %s (allowed: %s)", ErrInvalidTransition, machine.kind, from, to, strings.Join(names, ", "))
}

type transitionRequest struct {
	entityID string
	target   Status
	actor    directory.Actor
	metadata Metadata
}

type transitioner interface {
	transition(ctx context.Context, engine *Engine, request transitionRequest) (Result, error)
}

func (machine *Machine[S]) transition(ctx context.Context, engine *Engine, request transitionRequest) (Result, error) {
	result := Result{Kind: machine.kind, EntityID: request.entityID, To: request.target}
	err := engine.store.InTransaction(ctx, func(ctx context.Context, txStore Store) error {
		subject, err := machine.load(ctx, txStore, request.entityID)
		if err != nil {
			return err
		}
		from := subject.CurrentStatus()
		result.From = from
		rule, ok := machine.Rule(from, request.target)
		if !ok {
			return machine.invalidTransition(from, request.target)
		}
		result.Action = rule.Action
		if err := engine.authorize(ctx, txStore, subject, rule.Access, request.actor); err != nil {
			return err
		}
		change := Change{
			Actor:    request.actor,
			Metadata: request.metadata,
			From:     from,
			To:       request.target,
			At:       engine.nowFn().UTC(),
			Policy:   engine.policy,
		}
		if rule.Guard != nil {
			if err := rule.Guard(ctx, txStore, subject, change); err != nil {
				return err
			}
		}
		if rule.Apply != nil {
			if err := rule.Apply(ctx, txStore, subject, change); err != nil {
				return err
			}
		}
		subject.setStatus(request.target)

		if rule.Grants != nil {
			grants, err := rule.Grants(ctx, txStore, subject, change)
			if err != nil {
				return err
			}
			for _, grant := range grants {
				if grant.Amount == 0 || strings.TrimSpace(grant.UserID) == "" {
					continue
				}
				entry, err := points.Record(ctx, txStore.Ledger(), grant, change.At)
				if err != nil {
					return err
				}
				result.Entries = append(result.Entries, entry)
			}
		}

		updated, err := machine.save(ctx, txStore, subject, from)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: %s %s left %s concurrently", ErrInvalidTransition, machine.kind, request.entityID, from)
		}
		return txStore.AppendActivity(ctx, newActivity(machine.kind, subject.SubjectID(), rule.Action, request.actor.ID, transitionDetails(change, len(result.Entries)), change.At))
	})
	engine.logTransition(ctx, TransitionLog{
		Kind:     machine.kind,
		EntityID: request.entityID,
		Action:   result.Action,
		ActorID:  request.actor.ID,
		From:     result.From,
		To:       request.target,
		Grants:   len(result.Entries),
		Error:    err,
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func transitionDetails(change Change, grants int) map[string]any {
	details := map[string]any{
		"from": change.From.String(),
		"to":   change.To.String(),
	}
	metadata := change.Metadata
	if reason := strings.TrimSpace(metadata.Reason); reason != "" {
		details["reason"] = reason
	}
	if evidence := strings.TrimSpace(metadata.EvidenceRef); evidence != "" {
		details["evidence_ref"] = evidence
	}
	if metadata.AttendeesCount != nil {
		details["attendees_count"] = *metadata.AttendeesCount
	}
	if len(metadata.PhotoRefs) > 0 {
		details["photo_refs"] = len(metadata.PhotoRefs)
	}
	if note := strings.TrimSpace(metadata.Note); note != "" {
		details["note"] = note
	}
	if grants > 0 {
		details["point_entries"] = grants
	}
	return details
}
