// Package report freezes a user's monthly activity into a snapshot and files
// it as a draft report. Stored snapshots are historical records and are never
// refreshed from their sources.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

const minimumYear = 2000

var (
	ErrValidation          = points.ErrValidation
	ErrInvalidPeriod       = fmt.Errorf("%w: invalid report period", ErrValidation)
	ErrInvalidActorID      = fmt.Errorf("%w: invalid actor id", ErrValidation)
	ErrInvalidBuilderInput = errors.New("invalid snapshot builder config")
)

// SessionItem is a confirmed session as it looked when the report was built.
type SessionItem struct {
	ID             string    `json:"id"`
	ClubID         string    `json:"club_id"`
	ClubName       string    `json:"club_name"`
	Title          string    `json:"title"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	PresentCount   int       `json:"present_count"`
	TotalCount     int       `json:"total_count"`
	AttendanceRate *float64  `json:"attendance_rate"`
	PointsValue    int64     `json:"points_value"`
}

// EventItem is a completed event organized by the author.
type EventItem struct {
	ID             string    `json:"id"`
	ClubID         string    `json:"club_id"`
	Title          string    `json:"title"`
	StartsAt       time.Time `json:"starts_at"`
	AttendeesCount int       `json:"attendees_count"`
	PointsValue    int64     `json:"points_value"`
}

// MemberItem is a membership approved during the month.
type MemberItem struct {
	MembershipID string    `json:"membership_id"`
	ClubID       string    `json:"club_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	ApprovedAt   time.Time `json:"approved_at"`
}

// PointItem is a ledger entry of the author.
type PointItem struct {
	ID            string    `json:"id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary holds the scalar aggregates of a snapshot.
type Summary struct {
	SessionsCount         int      `json:"sessions_count"`
	EventsCount           int      `json:"events_count"`
	NewMembersCount       int      `json:"new_members_count"`
	PointsEarned          int64    `json:"points_earned"`
	TotalSessionAttendees int      `json:"total_session_attendees"`
	TotalEventAttendees   int      `json:"total_event_attendees"`
	AverageAttendanceRate *float64 `json:"average_attendance_rate"`
}

// Snapshot is the frozen monthly activity of one author.
type Snapshot struct {
	Month    int
	Year     int
	From     time.Time
	To       time.Time
	Sessions []SessionItem
	Events   []EventItem
	Members  []MemberItem
	Points   []PointItem
	Summary  Summary
}

// Source reads the live collections a snapshot is built from.
// Ranges are half-open: from <= t < to.
type Source interface {
	ListConfirmedSessions(ctx context.Context, clubIDs []string, from time.Time, to time.Time) ([]SessionItem, error)
	ListCompletedEvents(ctx context.Context, organizerID string, from time.Time, to time.Time) ([]EventItem, error)
	ListApprovedMemberships(ctx context.Context, clubIDs []string, from time.Time, to time.Time) ([]MemberItem, error)
	ListByUserBetween(ctx context.Context, userID string, from time.Time, to time.Time) ([]points.Entry, error)
}

// MonthRange returns the first instant of the month and the first instant of
// the next one, both UTC.
func MonthRange(month int, year int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	if year < minimumYear {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

// Builder assembles snapshots from a Source.
type Builder struct {
	source Source
}

// NewBuilder wires a Builder.
func NewBuilder(source Source) (*Builder, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source dependency is nil", ErrInvalidBuilderInput)
	}
	return &Builder{source: source}, nil
}

// BuildSnapshot reads the month's confirmed sessions and approved memberships
// of clubIDs, the completed events and ledger entries of actorID, and
// aggregates them. Reads are not isolated from concurrent writers.
func (builder *Builder) BuildSnapshot(ctx context.Context, actorID string, month int, year int, clubIDs []string) (Snapshot, error) {
	author := strings.TrimSpace(actorID)
	if author == "" {
		return Snapshot{}, fmt.Errorf("%w: empty value", ErrInvalidActorID)
	}
	from, to, err := MonthRange(month, year)
	if err != nil {
		return Snapshot{}, err
	}
	clubs := normalizeIDs(clubIDs)
	snapshot := Snapshot{Month: month, Year: year, From: from, To: to}

	if len(clubs) > 0 {
		sessions, err := builder.source.ListConfirmedSessions(ctx, clubs, from, to)
		if err != nil {
			return Snapshot{}, err
		}
		snapshot.Sessions = append([]SessionItem{}, sessions...)
		members, err := builder.source.ListApprovedMemberships(ctx, clubs, from, to)
		if err != nil {
			return Snapshot{}, err
		}
		snapshot.Members = append([]MemberItem{}, members...)
	}
	events, err := builder.source.ListCompletedEvents(ctx, author, from, to)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Events = append([]EventItem{}, events...)
	entries, err := builder.source.ListByUserBetween(ctx, author, from, to)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Points = make([]PointItem, 0, len(entries))
	for _, entry := range entries {
		snapshot.Points = append(snapshot.Points, PointItem{
			ID:            entry.ID,
			Amount:        entry.Amount,
			Reason:        entry.Reason,
			ReferenceType: entry.ReferenceType.String(),
			ReferenceID:   entry.ReferenceID,
			CreatedAt:     entry.CreatedAt,
		})
	}
	if snapshot.Sessions == nil {
		snapshot.Sessions = []SessionItem{}
	}
	if snapshot.Members == nil {
		snapshot.Members = []MemberItem{}
	}
	snapshot.Summary = summarize(snapshot)
	return snapshot, nil
}

func summarize(snapshot Snapshot) Summary {
	summary := Summary{
		SessionsCount:   len(snapshot.Sessions),
		EventsCount:     len(snapshot.Events),
		NewMembersCount: len(snapshot.Members),
	}
	var rateSum float64
	rated := 0
	for _, session := range snapshot.Sessions {
		summary.TotalSessionAttendees += session.PresentCount
		if session.AttendanceRate != nil {
			rateSum += *session.AttendanceRate
			rated++
		}
	}
	if rated > 0 {
		average := rateSum / float64(rated)
		summary.AverageAttendanceRate = &average
	}
	for _, event := range snapshot.Events {
		summary.TotalEventAttendees += event.AttendeesCount
	}
	for _, item := range snapshot.Points {
		summary.PointsEarned += item.Amount
	}
	return summary
}

func normalizeIDs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
