// Package workflow implements the approval state machines of clubs, events,
// task submissions, monthly reports and club sessions. Every transition into a
// point-granting state writes its ledger entries in the same transaction as
// the state change.
package workflow

import (
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

// Status is the lifecycle state of an approvable entity.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusRemoved         Status = "removed"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusDraft           Status = "draft"
	StatusSubmitted       Status = "submitted"
	StatusScheduled       Status = "scheduled"
	StatusConfirmed       Status = "confirmed"
)

// String returns the stored representation.
func (status Status) String() string {
	return string(status)
}

// Kind tags an entity type. Transitions dispatch on it.
type Kind string

const (
	KindMembership     Kind = "membership"
	KindEvent          Kind = "event"
	KindTask           Kind = "task"
	KindTaskCompletion Kind = "task_completion"
	KindReport         Kind = "report"
	KindSession        Kind = "session"
)

// String returns the stored representation.
func (kind Kind) String() string {
	return string(kind)
}

// Subject is an entity driven by a Machine.
type Subject interface {
	SubjectID() string
	CurrentStatus() Status
	// OwnerID is the user who created or submitted the entity.
	OwnerID() string
	// ClubID is empty for entities not tied to a club.
	ClubID() string
	setStatus(status Status)
}

// Membership links a user to a club.
type Membership struct {
	ID          string
	Club        string
	UserID      string
	Status      Status
	EvidenceRef string
	Reason      string
	ReviewerID  string
	RequestedAt time.Time
	ReviewedAt  *time.Time
}

func (membership *Membership) SubjectID() string       { return membership.ID }
func (membership *Membership) CurrentStatus() Status   { return membership.Status }
func (membership *Membership) OwnerID() string         { return membership.UserID }
func (membership *Membership) ClubID() string          { return membership.Club }
func (membership *Membership) setStatus(status Status) { membership.Status = status }

// Event is a club event proposed by an organizer.
type Event struct {
	ID             string
	Club           string
	OrganizerID    string
	Title          string
	Description    string
	StartsAt       time.Time
	PointsValue    int64
	Status         Status
	AttendeesCount *int
	PhotoRefs      []string
	AttendeeIDs    []string
	Reason         string
	ReviewerID     string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

func (event *Event) SubjectID() string       { return event.ID }
func (event *Event) CurrentStatus() Status   { return event.Status }
func (event *Event) OwnerID() string         { return event.OrganizerID }
func (event *Event) ClubID() string          { return event.Club }
func (event *Event) setStatus(status Status) { event.Status = status }

// Task is an admin-defined assignment members can complete for points.
type Task struct {
	ID             string
	Title          string
	Description    string
	Points         int64
	MaxCompletions int
	CreatedBy      string
	CreatedAt      time.Time
}

// TaskCompletion is a user's submission for a task.
type TaskCompletion struct {
	ID          string
	TaskID      string
	UserID      string
	Status      Status
	EvidenceRef string
	Reason      string
	ReviewerID  string
	SubmittedAt time.Time
	ReviewedAt  *time.Time
}

func (completion *TaskCompletion) SubjectID() string       { return completion.ID }
func (completion *TaskCompletion) CurrentStatus() Status   { return completion.Status }
func (completion *TaskCompletion) OwnerID() string         { return completion.UserID }
func (completion *TaskCompletion) ClubID() string          { return "" }
func (completion *TaskCompletion) setStatus(status Status) { completion.Status = status }

// Report is the reviewable part of a monthly activity report. Its frozen
// snapshot lives with the report package.
type Report struct {
	ID          string
	AuthorID    string
	Month       int
	Year        int
	Status      Status
	Highlights  string
	Challenges  string
	NextSteps   string
	Reason      string
	ReviewerID  string
	CreatedAt   time.Time
	SubmittedAt *time.Time
	ReviewedAt  *time.Time
}

func (report *Report) SubjectID() string       { return report.ID }
func (report *Report) CurrentStatus() Status   { return report.Status }
func (report *Report) OwnerID() string         { return report.AuthorID }
func (report *Report) ClubID() string          { return "" }
func (report *Report) setStatus(status Status) { report.Status = status }

// Session is a recurring club meeting whose attendance is confirmed by its host.
type Session struct {
	ID             string
	Club           string
	HostID         string
	Title          string
	ScheduledAt    time.Time
	PointsValue    int64
	Status         Status
	PresentCount   int
	TotalCount     int
	AttendanceRate *float64
	Reason         string
	ConfirmedAt    *time.Time
	CreatedAt      time.Time
}

func (session *Session) SubjectID() string       { return session.ID }
func (session *Session) CurrentStatus() Status   { return session.Status }
func (session *Session) OwnerID() string         { return session.HostID }
func (session *Session) ClubID() string          { return session.Club }
func (session *Session) setStatus(status Status) { session.Status = status }

// SessionAttendance is one attendance record, unique per (session, user).
type SessionAttendance struct {
	SessionID  string
	UserID     string
	Present    bool
	RecordedAt time.Time
}

// Metadata carries the caller-supplied inputs of a transition.
type Metadata struct {
	Reason         string
	EvidenceRef    string
	AttendeesCount *int
	PhotoRefs      []string
	AttendeeIDs    []string
	Note           string
}

// Result describes an applied transition.
type Result struct {
	Kind     Kind
	EntityID string
	Action   string
	From     Status
	To       Status
	Entries  []points.Entry
}

// Policy holds the tunable constants of the workflows.
type Policy struct {
	MinEventPhotos        int
	MembershipPoints      int64
	EventAttendeePoints   int64
	SessionAttendeePoints int64
	ReportApprovalPoints  int64
}

// DefaultPolicy returns the platform defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinEventPhotos:   3,
		MembershipPoints: 5,
	}
}

// ActivityEntry is one line of the audit trail.
type ActivityEntry struct {
	ID         string
	EntityType Kind
	EntityID   string
	Action     string
	ActorID    string
	Details    map[string]any
	CreatedAt  time.Time
}
