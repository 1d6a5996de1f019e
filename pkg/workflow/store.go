package workflow

import (
	"context"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

// Store is the persistence contract of the workflows.
//
// Update* methods are conditional writes: they apply only while the stored
// status still equals from, and report false when another writer got there first.
// Inserts and updates that would create a second live membership, a second
// pending task completion or a second report for the same month must fail with
// ErrDuplicateSubmission.
type Store interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// Ledger exposes the ledger bound to the same transaction.
	Ledger() points.Store

	GetUser(ctx context.Context, userID string) (directory.User, error)
	GetClub(ctx context.Context, clubID string) (directory.Club, error)

	InsertMembership(ctx context.Context, membership Membership) error
	GetMembership(ctx context.Context, membershipID string) (Membership, error)
	UpdateMembership(ctx context.Context, membership Membership, from Status) (bool, error)

	InsertEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, eventID string) (Event, error)
	UpdateEvent(ctx context.Context, event Event, from Status) (bool, error)

	InsertTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	InsertTaskCompletion(ctx context.Context, completion TaskCompletion) error
	GetTaskCompletion(ctx context.Context, completionID string) (TaskCompletion, error)
	UpdateTaskCompletion(ctx context.Context, completion TaskCompletion, from Status) (bool, error)
	CountTaskCompletions(ctx context.Context, taskID string, userID string, status Status) (int64, error)

	GetReport(ctx context.Context, reportID string) (Report, error)
	UpdateReport(ctx context.Context, report Report, from Status) (bool, error)

	InsertSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	UpdateSession(ctx context.Context, session Session, from Status) (bool, error)
	UpsertAttendance(ctx context.Context, attendance SessionAttendance) error
	ListAttendance(ctx context.Context, sessionID string) ([]SessionAttendance, error)

	AppendActivity(ctx context.Context, entry ActivityEntry) error
}
