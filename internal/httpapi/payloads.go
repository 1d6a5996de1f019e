package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/leaderboard"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/report"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
)

type grantRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
	ReferenceID string `json:"reference_id"`
}

type correctionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type membershipRequest struct {
	UserID      string `json:"user_id"`
	EvidenceRef string `json:"evidence_ref"`
}

type eventRequest struct {
	ClubID      string    `json:"club_id" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	PointsValue int64     `json:"points_value" binding:"min=0"`
	PhotoRefs   []string  `json:"photo_refs"`
}

type taskRequest struct {
	Title          string `json:"title" binding:"required"`
	Description    string `json:"description"`
	Points         int64  `json:"points" binding:"required,min=1"`
	MaxCompletions int    `json:"max_completions" binding:"min=0"`
}

type completionRequest struct {
	EvidenceRef string `json:"evidence_ref"`
}

type sessionRequest struct {
	ClubID      string    `json:"club_id" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	PointsValue int64     `json:"points_value" binding:"min=0"`
}

type attendanceRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Present *bool  `json:"present" binding:"required"`
}

type reportRequest struct {
	Month   int      `json:"month" binding:"required"`
	Year    int      `json:"year" binding:"required"`
	ClubIDs []string `json:"club_ids"`
}

type reportEditRequest struct {
	Highlights *string `json:"highlights"`
	Challenges *string `json:"challenges"`
	NextSteps  *string `json:"next_steps"`
}

type transitionRequest struct {
	Target         string   `json:"target" binding:"required"`
	Reason         string   `json:"reason"`
	EvidenceRef    string   `json:"evidence_ref"`
	AttendeesCount *int     `json:"attendees_count" binding:"omitempty,min=0"`
	PhotoRefs      []string `json:"photo_refs"`
	AttendeeIDs    []string `json:"attendee_ids"`
	Note           string   `json:"note"`
}

func (request transitionRequest) metadata() workflow.Metadata {
	return workflow.Metadata{
		Reason:         request.Reason,
		EvidenceRef:    request.EvidenceRef,
		AttendeesCount: request.AttendeesCount,
		PhotoRefs:      request.PhotoRefs,
		AttendeeIDs:    request.AttendeeIDs,
		Note:           request.Note,
	}
}

type entryPayload struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func newEntryPayload(entry points.Entry) entryPayload {
	return entryPayload{
		ID:            entry.ID,
		UserID:        entry.UserID,
		Amount:        entry.Amount,
		Reason:        entry.Reason,
		ReferenceType: entry.ReferenceType.String(),
		ReferenceID:   entry.ReferenceID,
		CreatedAt:     entry.CreatedAt,
	}
}

func newEntryPayloads(entries []points.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, newEntryPayload(entry))
	}
	return payloads
}

type pointsPayload struct {
	UserID  string         `json:"user_id"`
	Total   int64          `json:"total"`
	Entries []entryPayload `json:"entries"`
}

type resultPayload struct {
	Kind     string         `json:"kind"`
	EntityID string         `json:"entity_id"`
	Action   string         `json:"action"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Entries  []entryPayload `json:"entries"`
}

func newResultPayload(result workflow.Result) resultPayload {
	return resultPayload{
		Kind:     result.Kind.String(),
		EntityID: result.EntityID,
		Action:   result.Action,
		From:     result.From.String(),
		To:       result.To.String(),
		Entries:  newEntryPayloads(result.Entries),
	}
}

type membershipPayload struct {
	ID          string     `json:"id"`
	ClubID      string     `json:"club_id"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	EvidenceRef string     `json:"evidence_ref,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}

func newMembershipPayload(membership workflow.Membership) membershipPayload {
	return membershipPayload{
		ID:          membership.ID,
		ClubID:      membership.Club,
		UserID:      membership.UserID,
		Status:      membership.Status.String(),
		EvidenceRef: membership.EvidenceRef,
		RequestedAt: membership.RequestedAt,
		ReviewedAt:  membership.ReviewedAt,
	}
}

type eventPayload struct {
	ID          string    `json:"id"`
	ClubID      string    `json:"club_id"`
	OrganizerID string    `json:"organizer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	PointsValue int64     `json:"points_value"`
	Status      string    `json:"status"`
	PhotoRefs   []string  `json:"photo_refs"`
}

func newEventPayload(event workflow.Event) eventPayload {
	photoRefs := event.PhotoRefs
	if photoRefs == nil {
		photoRefs = []string{}
	}
	return eventPayload{
		ID:          event.ID,
		ClubID:      event.Club,
		OrganizerID: event.OrganizerID,
		Title:       event.Title,
		Description: event.Description,
		StartsAt:    event.StartsAt,
		PointsValue: event.PointsValue,
		Status:      event.Status.String(),
		PhotoRefs:   photoRefs,
	}
}

type taskPayload struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Points         int64  `json:"points"`
	MaxCompletions int    `json:"max_completions"`
}

type completionPayload struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type sessionPayload struct {
	ID          string    `json:"id"`
	ClubID      string    `json:"club_id"`
	HostID      string    `json:"host_id"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	PointsValue int64     `json:"points_value"`
	Status      string    `json:"status"`
}

type attendancePayload struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Present    bool      `json:"present"`
	RecordedAt time.Time `json:"recorded_at"`
}

type reportPayload struct {
	ID          string          `json:"id"`
	AuthorID    string          `json:"author_id"`
	Month       int             `json:"month"`
	Year        int             `json:"year"`
	Status      string          `json:"status"`
	Highlights  string          `json:"highlights"`
	Challenges  string          `json:"challenges"`
	NextSteps   string          `json:"next_steps"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	Snapshot    *snapshotPayload `json:"snapshot,omitempty"`
}

type snapshotPayload struct {
	From     time.Time            `json:"from"`
	To       time.Time            `json:"to"`
	Sessions []report.SessionItem `json:"sessions"`
	Events   []report.EventItem   `json:"events"`
	Members  []report.MemberItem  `json:"members"`
	Points   []report.PointItem   `json:"points"`
	Summary  report.Summary       `json:"summary"`
}

func newReportPayload(stored workflow.Report) reportPayload {
	return reportPayload{
		ID:          stored.ID,
		AuthorID:    stored.AuthorID,
		Month:       stored.Month,
		Year:        stored.Year,
		Status:      stored.Status.String(),
		Highlights:  stored.Highlights,
		Challenges:  stored.Challenges,
		NextSteps:   stored.NextSteps,
		Reason:      stored.Reason,
		CreatedAt:   stored.CreatedAt,
		SubmittedAt: stored.SubmittedAt,
	}
}

func newReportRecordPayload(record report.Record) reportPayload {
	payload := newReportPayload(record.Report)
	payload.Snapshot = &snapshotPayload{
		From:     record.Snapshot.From,
		To:       record.Snapshot.To,
		Sessions: record.Snapshot.Sessions,
		Events:   record.Snapshot.Events,
		Members:  record.Snapshot.Members,
		Points:   record.Snapshot.Points,
		Summary:  record.Snapshot.Summary,
	}
	return payload
}

type rankedPayload struct {
	Rank            int    `json:"rank"`
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	Role            string `json:"role"`
	RegionID        string `json:"region_id,omitempty"`
	RegionLabel     string `json:"region_label"`
	ClubLabel       string `json:"club_label"`
	LedgerPoints    int64  `json:"ledger_points"`
	SecondaryPoints int64  `json:"secondary_points"`
	TotalPoints     int64  `json:"total_points"`
}

func newRankedPayloads(entries []leaderboard.RankedEntry) []rankedPayload {
	payloads := make([]rankedPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, rankedPayload{
			Rank:            entry.Rank,
			UserID:          entry.UserID,
			Name:            entry.Name,
			AvatarURL:       entry.AvatarURL,
			Role:            entry.Role.String(),
			RegionID:        entry.RegionID,
			RegionLabel:     entry.RegionLabel,
			ClubLabel:       entry.ClubLabel,
			LedgerPoints:    entry.LedgerPoints,
			SecondaryPoints: entry.SecondaryPoints,
			TotalPoints:     entry.TotalPoints,
		})
	}
	return payloads
}

type standingPayload struct {
	Rank        int    `json:"rank"`
	ClubID      string `json:"club_id"`
	ClubName    string `json:"club_name"`
	RegionID    string `json:"region_id"`
	RegionLabel string `json:"region_label"`
	MemberCount int    `json:"member_count"`
	TotalPoints int64  `json:"total_points"`
}

func newStandingPayloads(standings []leaderboard.ClubStanding) []standingPayload {
	payloads := make([]standingPayload, 0, len(standings))
	for _, standing := range standings {
		payloads = append(payloads, standingPayload(standing))
	}
	return payloads
}
