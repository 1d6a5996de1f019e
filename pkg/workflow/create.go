package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/google/uuid"
)

// EventDraft holds the fields of a proposed event.
type EventDraft struct {
	ClubID      string
	Title       string
	Description string
	StartsAt    time.Time
	PointsValue int64
	PhotoRefs   []string
}

// TaskDraft holds the fields of a new task.
type TaskDraft struct {
	Title          string
	Description    string
	Points         int64
	MaxCompletions int
}

// SessionDraft holds the fields of a scheduled club session.
type SessionDraft struct {
	ClubID      string
	Title       string
	ScheduledAt time.Time
	PointsValue int64
}

// ReportEdit carries the narrative fields to change; nil fields stay as they are.
type ReportEdit struct {
	Highlights *string
	Challenges *string
	NextSteps  *string
}

type writeFunc func(ctx context.Context, txStore Store, at time.Time) (entityID string, details map[string]any, err error)

// write runs fn in a transaction and appends its activity entry alongside.
func (engine *Engine) write(ctx context.Context, kind Kind, action string, actor directory.Actor, fn writeFunc) error {
	var entityID string
	err := actor.Validate()
	if err == nil {
		err = engine.store.InTransaction(ctx, func(ctx context.Context, txStore Store) error {
			at := engine.nowFn().UTC()
			writtenID, details, err := fn(ctx, txStore, at)
			if err != nil {
				return err
			}
			entityID = writtenID
			if details == nil {
				return nil
			}
			return txStore.AppendActivity(ctx, newActivity(kind, writtenID, action, actor.ID, details, at))
		})
	}
	engine.logTransition(ctx, TransitionLog{
		Kind:     kind,
		EntityID: entityID,
		Action:   action,
		ActorID:  actor.ID,
		Error:    err,
	})
	return err
}

// RequestMembership creates a pending membership. Users request for themselves;
// reviewers of the club may request on behalf of others.
func (engine *Engine) RequestMembership(ctx context.Context, actor directory.Actor, clubID string, userID string, evidenceRef string) (Membership, error) {
	var membership Membership
	err := engine.write(ctx, KindMembership, actionCreate, actor, func(ctx context.Context, txStore Store, at time.Time) (string, map[string]any, error) {
		club, err := txStore.GetClub(ctx, strings.TrimSpace(clubID))
		if err != nil {
			return "", nil, err
		}
		member := strings.TrimSpace(userID)
		if member == "" {
			member = actor.ID
		}
		if member != actor.ID {
			reviewer, err := engine.reviews(ctx, txStore, club.ID, actor)
			if err != nil {
				return "", nil, err
			}
			if !reviewer {
				return "", nil, fmt.Errorf("%w: %s may not request membership for %s", ErrForbidden, actor.ID, member)
			}
		}
		if _, err := txStore.GetUser(ctx, member); err != nil {
			return "", nil, err
		}
		membership = Membership{
			ID:          uuid.NewString(),
			Club:        club.ID,
			UserID:      member,
			Status:      StatusPending,
			EvidenceRef: strings.TrimSpace(evidenceRef),
			RequestedAt: at,
		}
		if err := txStore.InsertMembership(ctx, membership); err != nil {
			return "", nil, err
		}
		return membership.ID, map[string]any{
			"club_id":      membership.Club,
			"user_id":      membership.UserID,
			"status":       membership.Status.String(),
			"evidence_ref": membership.EvidenceRef,
		}, nil
	})
	if err != nil {
		return Membership{}, err
	}
	return membership, nil
}

// ProposeEvent creates an event awaiting approval, organized by the actor.
func (engine *Engine) ProposeEvent(ctx context.Context, actor directory.Actor, draft EventDraft) (Event, error) {
	var event Event
	err := engine.write(ctx, KindEvent, actionCreate, actor, func(ctx context.Context, txStore Store, at time.Time) (string, map[string]any, error) {
		title := strings.TrimSpace(draft.Title)
		if title == "" {
			return "", nil, fmt.Errorf("%w: event title is empty", ErrInvalidDraft)
		}
		if draft.PointsValue < 0 {
			return "", nil, fmt.Errorf("%w: event points must not be negative", ErrInvalidDraft)
		}
		club, err := txStore.GetClub(ctx, strings.TrimSpace(draft.ClubID))
		if err != nil {
			return "", nil, err
		}
		event = Event{
			ID:          uuid.NewString(),
			Club:        club.ID,
			OrganizerID: actor.ID,
			Title:       title,
			Description: strings.TrimSpace(draft.Description),
			StartsAt:    draft.StartsAt.UTC(),
			PointsValue: draft.PointsValue,
			Status:      StatusPendingApproval,
			PhotoRefs:   distinct(draft.PhotoRefs),
			CreatedAt:   at,
		}
		if err := txStore.InsertEvent(ctx, event); err != nil {
			return "", nil, err
		}
		return event.ID, map[string]any{
			"club_id":      event.Club,
			"title":        event.Title,
			"starts_at":    event.StartsAt,
			"points_value": event.PointsValue,
			"status":       event.Status.String(),
		}, nil
	})
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

// CreateTask defines a new task. Only admins create tasks.
func (engine *Engine) CreateTask(ctx context.Context, actor directory.Actor, draft TaskDraft) (Task, error) {
	var task Task
	err := engine.write(ctx, KindTask, actionCreate, actor, func(ctx context.Context, txStore Store, at time.Time) (string, map[string]any, error) {
		if actor.Role != directory.RoleAdmin {
			return "", nil, fmt.Errorf("%w: only admins create tasks", ErrForbidden)
		}
		title := strings.TrimSpace(draft.Title)
		if title == "" {
			return "", nil, fmt.Errorf("%w: task title is empty", ErrInvalidDraft)
		}
		if draft.Points <= 0 {
			return "", nil, fmt.Errorf("%w: task points must be positive", ErrInvalidDraft)
		}
		if draft.MaxCompletions < 1 {
			return "", nil, fmt.Errorf("%w: max completions must be at least 1", ErrInvalidDraft)
		}
		task = Task{
			ID:             uuid.NewString(),
			Title:          title,
			Description:    strings.TrimSpace(draft.Description),
			Points:         draft.Points,
			MaxCompletions: draft.MaxCompletions,
			CreatedBy:      actor.ID,
			CreatedAt:      at,
		}
		if err := txStore.InsertTask(ctx, task); err != nil {
			return "", nil, err
		}
		return task.ID, map[string]any{
			"title":           task.Title,
			"points":          task.Points,
			"max_completions": task.MaxCompletions,
		}, nil
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// SubmitTask files a pending completion for the actor. A capped task fails with
// ErrLimitReached before the pending check yields ErrDuplicateSubmission.
func (engine *Engine) SubmitTask(ctx context.Context, actor directory.Actor, taskID string, evidenceRef string) (TaskCompletion, error) {
	var completion TaskCompletion
	err := engine.write(ctx, KindTaskCompletion, actionCreate, actor, func(ctx context.Context, txStore Store, at time.Time) (string, map[string]any, error) {
		task, err := txStore.GetTask(ctx, strings.TrimSpace(taskID))
		if err != nil {
			return "", nil, err
		}
		if err := checkSubmissionSlot(ctx, txStore, task, actor.ID); err != nil {
			return "", nil, err
		}
		completion = TaskCompletion{
			ID:          uuid.NewString(),
			TaskID:      task.ID,
			UserID:      actor.ID,
			Status:      StatusPending,
			EvidenceRef: strings.TrimSpace(evidenceRef),
			SubmittedAt: at,
		}
		if err := txStore.InsertTaskCompletion(ctx, completion); err != nil {
			return "", nil, err
		}
		return completion.ID, map[string]any{
			"task_id":      completion.TaskID,
			"user_id":      completion.UserID,
			"status":       completion.Status.String(),
			"evidence_ref": completion.EvidenceRef,
		}, nil
	})
	if err != nil {
		return TaskCompletion{}, err
	}
	return completion, nil
}

// ScheduleSession creates a session hosted by the actor in a club the actor reviews.
func (engine *Engine) ScheduleSession(ctx context.Context, actor directory.Actor, draft SessionDraft) (Session, error) {
	var session Session
	err := engine.write(ctx, KindSession, actionCreate, actor, func(ctx context.Context, txStore Store, at time.Time) (string, map[string]any, error) {
		title := strings.TrimSpace(draft.Title)
		if title == "" {
			return "", nil, fmt.Errorf("%w: session title is empty", ErrInvalidDraft)
		}
		if draft.PointsValue < 0 {
			return "", nil, fmt.Errorf("%w: session points must not be negative", ErrInvalidDraft)
		}
		club, err := txStore.GetClub(ctx, strings.TrimSpace(draft.ClubID))
		if err != nil {
			return "", nil, err
		}
		reviewer, err := engine.reviews(ctx, txStore, club.ID, actor)
		if err != nil {
			return "", nil, err
		}
		if !reviewer {
			return "", nil, fmt.Errorf("%w: %s does not lead club %s", ErrForbidden, actor.ID, club.ID)
		}
		session = Session{
			ID:          uuid.NewString(),
			Club:        club.ID,
			HostID:      actor.ID,
			Title:       title,
			ScheduledAt: draft.ScheduledAt.UTC(),
			PointsValue: draft.PointsValue,
			Status:      StatusScheduled,
			CreatedAt:   at,
		}
		if err := txStore.InsertSession(ctx, session); err != nil {
			return "", nil, err
		}
		return session.ID, map[string]any{
			"club_id":      session.Club,
			"title":        session.Title,
			"scheduled_at": session.ScheduledAt,
			"points_value": session.PointsValue,
			"status":       session.Status.String(),
		}, nil
	})
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// RecordAttendance upserts one attendance record while the session is scheduled.
func (engine *Engine) RecordAttendance(ctx context.Context, actor directory.Actor, sessionID string, userID string, present bool) (SessionAttendance, error) {
	var attendance SessionAttendance
	err := engine.write(ctx, KindSession, actionAttendance, actor, func(ctx context.Context, txStore Store, at time.Time) (string, map[string]any, error) {
		session, err := txStore.GetSession(ctx, strings.TrimSpace(sessionID))
		if err != nil {
			return "", nil, err
		}
		if session.Status != StatusScheduled {
			return "", nil, fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, session.ID, session.Status)
		}
		if !actor.Owns(session.HostID) {
			reviewer, err := engine.reviews(ctx, txStore, session.Club, actor)
			if err != nil {
				return "", nil, err
			}
			if !reviewer {
				return "", nil, fmt.Errorf("%w: %s may not record attendance for %s", ErrForbidden, actor.ID, session.ID)
			}
		}
		user, err := txStore.GetUser(ctx, strings.TrimSpace(userID))
		if err != nil {
			return "", nil, err
		}
		attendance = SessionAttendance{SessionID: session.ID, UserID: user.ID, Present: present, RecordedAt: at}
		if err := txStore.UpsertAttendance(ctx, attendance); err != nil {
			return "", nil, err
		}
		return session.ID, map[string]any{
			"user_id": attendance.UserID,
			"present": attendance.Present,
		}, nil
	})
	if err != nil {
		return SessionAttendance{}, err
	}
	return attendance, nil
}

// UpdateReport edits the narrative of a draft or rejected report owned by the actor.
// The activity entry records a before/after pair per changed field.
func (engine *Engine) UpdateReport(ctx context.Context, actor directory.Actor, reportID string, edit ReportEdit) (Report, error) {
	var report Report
	err := engine.write(ctx, KindReport, actionUpdate, actor, func(ctx context.Context, txStore Store, _ time.Time) (string, map[string]any, error) {
		loaded, err := txStore.GetReport(ctx, strings.TrimSpace(reportID))
		if err != nil {
			return "", nil, err
		}
		report = loaded
		if !actor.Owns(report.AuthorID) {
			return "", nil, fmt.Errorf("%w: %s does not own report %s", ErrForbidden, actor.ID, report.ID)
		}
		if report.Status != StatusDraft && report.Status != StatusRejected {
			return "", nil, fmt.Errorf("%w: report %s is %s", ErrInvalidTransition, report.ID, report.Status)
		}
		diff := make(map[string]any)
		applyEdit(diff, "highlights", &report.Highlights, edit.Highlights)
		applyEdit(diff, "challenges", &report.Challenges, edit.Challenges)
		applyEdit(diff, "next_steps", &report.NextSteps, edit.NextSteps)
		if len(diff) == 0 {
			return report.ID, nil, nil
		}
		updated, err := txStore.UpdateReport(ctx, report, report.Status)
		if err != nil {
			return "", nil, err
		}
		if !updated {
			return "", nil, fmt.Errorf("%w: report %s changed concurrently", ErrInvalidTransition, report.ID)
		}
		return report.ID, diff, nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func applyEdit(diff map[string]any, field string, current *string, next *string) {
	if next == nil {
		return
	}
	trimmed := strings.TrimSpace(*next)
	if trimmed == *current {
		return
	}
	diff[field] = map[string]any{"before": *current, "after": trimmed}
	*current = trimmed
}
