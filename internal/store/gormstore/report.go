package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/report"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"gorm.io/gorm"
)

type sessionRow struct {
	ID             string
	ClubID         string
	ClubName       string
	Title          string
	ScheduledAt    time.Time
	PresentCount   int
	TotalCount     int
	AttendanceRate *float64
	PointsValue    int64
}

type membershipRow struct {
	ID         string
	ClubID     string
	UserID     string
	Name       string
	ReviewedAt time.Time
}

// ListConfirmedSessions returns confirmed sessions of the clubs scheduled within [from, to).
func (store *Store) ListConfirmedSessions(ctx context.Context, clubIDs []string, from time.Time, to time.Time) ([]report.SessionItem, error) {
	if len(clubIDs) == 0 {
		return []report.SessionItem{}, nil
	}
	var rows []sessionRow
	err := store.db.WithContext(ctx).
		Table("sessions").
		Select("sessions.id, sessions.club_id, clubs.name AS club_name, sessions.title, sessions.scheduled_at, sessions.present_count, sessions.total_count, sessions.attendance_rate, sessions.points_value").
		Joins("JOIN clubs ON clubs.id = sessions.club_id").
		Where("sessions.status = ? AND sessions.club_id IN ?", workflow.StatusConfirmed.String(), clubIDs).
		Where("sessions.scheduled_at >= ? AND sessions.scheduled_at < ?", from.UTC(), to.UTC()).
		Order("sessions.scheduled_at").Order("sessions.id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, err)
	}
	items := make([]report.SessionItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, report.SessionItem{
			ID:             row.ID,
			ClubID:         row.ClubID,
			ClubName:       row.ClubName,
			Title:          row.Title,
			ScheduledAt:    row.ScheduledAt.UTC(),
			PresentCount:   row.PresentCount,
			TotalCount:     row.TotalCount,
			AttendanceRate: row.AttendanceRate,
			PointsValue:    row.PointsValue,
		})
	}
	return items, nil
}

// ListCompletedEvents returns completed events the organizer held within [from, to).
func (store *Store) ListCompletedEvents(ctx context.Context, organizerID string, from time.Time, to time.Time) ([]report.EventItem, error) {
	var rows []Event
	err := store.db.WithContext(ctx).
		Where("organizer_id = ? AND status = ?", organizerID, workflow.StatusCompleted.String()).
		Where("starts_at >= ? AND starts_at < ?", from.UTC(), to.UTC()).
		Order("starts_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	items := make([]report.EventItem, 0, len(rows))
	for _, row := range rows {
		attendees := 0
		if row.AttendeesCount != nil {
			attendees = *row.AttendeesCount
		}
		items = append(items, report.EventItem{
			ID:             row.ID,
			ClubID:         row.ClubID,
			Title:          row.Title,
			StartsAt:       row.StartsAt.UTC(),
			AttendeesCount: attendees,
			PointsValue:    row.PointsValue,
		})
	}
	return items, nil
}

// ListApprovedMemberships returns memberships of the clubs approved within [from, to).
func (store *Store) ListApprovedMemberships(ctx context.Context, clubIDs []string, from time.Time, to time.Time) ([]report.MemberItem, error) {
	if len(clubIDs) == 0 {
		return []report.MemberItem{}, nil
	}
	var rows []membershipRow
	err := store.db.WithContext(ctx).
		Table("memberships").
		Select("memberships.id, memberships.club_id, memberships.user_id, users.name, memberships.reviewed_at").
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.status = ? AND memberships.club_id IN ?", workflow.StatusApproved.String(), clubIDs).
		Where("memberships.reviewed_at >= ? AND memberships.reviewed_at < ?", from.UTC(), to.UTC()).
		Order("memberships.reviewed_at").Order("memberships.id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectMembership, errorCodeList, err)
	}
	items := make([]report.MemberItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, report.MemberItem{
			MembershipID: row.ID,
			ClubID:       row.ClubID,
			UserID:       row.UserID,
			Name:         row.Name,
			ApprovedAt:   row.ReviewedAt.UTC(),
		})
	}
	return items, nil
}

// CreateReport inserts the report with its snapshot and the activity entry in one transaction.
func (store *Store) CreateReport(ctx context.Context, record report.Record, activity workflow.ActivityEntry) error {
	model, err := reportModel(record)
	if err != nil {
		return err
	}
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		transactional := &Store{db: transaction}
		createErr := transactional.db.WithContext(ctx).Create(&model).Error
		if isUniqueConflict(createErr, constraintReportPeriod) {
			return wrapStoreError(errorSubjectReport, errorCodeDuplicate, workflow.ErrDuplicateSubmission)
		}
		if createErr != nil {
			return wrapStoreError(errorSubjectReport, errorCodeInsert, createErr)
		}
		return transactional.AppendActivity(ctx, activity)
	})
}

// GetReportRecord loads a report with the snapshot frozen at creation.
func (store *Store) GetReportRecord(ctx context.Context, reportID string) (report.Record, error) {
	var model Report
	err := store.take(ctx, &model, reportID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return report.Record{}, wrapStoreError(errorSubjectReport, errorCodeGet, workflow.ErrReportNotFound)
	}
	if err != nil {
		return report.Record{}, wrapStoreError(errorSubjectReport, errorCodeGet, err)
	}
	snapshot := report.Snapshot{
		Month:    model.Month,
		Year:     model.Year,
		From:     model.PeriodStart.UTC(),
		To:       model.PeriodEnd.UTC(),
		Sessions: []report.SessionItem{},
		Events:   []report.EventItem{},
		Members:  []report.MemberItem{},
		Points:   []report.PointItem{},
		Summary: report.Summary{
			SessionsCount:         model.SessionsCount,
			EventsCount:           model.EventsCount,
			NewMembersCount:       model.NewMembersCount,
			PointsEarned:          model.PointsEarned,
			TotalSessionAttendees: model.TotalSessionAttendees,
			TotalEventAttendees:   model.TotalEventAttendees,
			AverageAttendanceRate: model.AverageAttendanceRate,
		},
	}
	decodes := []struct {
		raw    []byte
		target any
	}{
		{raw: model.SessionsData, target: &snapshot.Sessions},
		{raw: model.EventsData, target: &snapshot.Events},
		{raw: model.MembersData, target: &snapshot.Members},
		{raw: model.PointsData, target: &snapshot.Points},
	}
	for _, decode := range decodes {
		if err := decodeJSON(decode.raw, decode.target); err != nil {
			return report.Record{}, wrapStoreError(errorSubjectReport, errorCodeDecode, err)
		}
	}
	return report.Record{Report: mapReport(model), Snapshot: snapshot}, nil
}

func reportModel(record report.Record) (Report, error) {
	snapshot := record.Snapshot
	sessions, err := encodeJSON(snapshot.Sessions, emptyArrayJSON)
	if err != nil {
		return Report{}, wrapStoreError(errorSubjectReport, errorCodeEncode, err)
	}
	events, err := encodeJSON(snapshot.Events, emptyArrayJSON)
	if err != nil {
		return Report{}, wrapStoreError(errorSubjectReport, errorCodeEncode, err)
	}
	members, err := encodeJSON(snapshot.Members, emptyArrayJSON)
	if err != nil {
		return Report{}, wrapStoreError(errorSubjectReport, errorCodeEncode, err)
	}
	pointItems, err := encodeJSON(snapshot.Points, emptyArrayJSON)
	if err != nil {
		return Report{}, wrapStoreError(errorSubjectReport, errorCodeEncode, err)
	}
	stored := record.Report
	return Report{
		ID:                    stored.ID,
		AuthorID:              stored.AuthorID,
		Month:                 stored.Month,
		Year:                  stored.Year,
		Status:                stored.Status.String(),
		Highlights:            stored.Highlights,
		Challenges:            stored.Challenges,
		NextSteps:             stored.NextSteps,
		Reason:                stored.Reason,
		ReviewerID:            nullableString(stored.ReviewerID),
		PeriodStart:           snapshot.From.UTC(),
		PeriodEnd:             snapshot.To.UTC(),
		SessionsData:          sessions,
		EventsData:            events,
		MembersData:           members,
		PointsData:            pointItems,
		SessionsCount:         snapshot.Summary.SessionsCount,
		EventsCount:           snapshot.Summary.EventsCount,
		NewMembersCount:       snapshot.Summary.NewMembersCount,
		PointsEarned:          snapshot.Summary.PointsEarned,
		TotalSessionAttendees: snapshot.Summary.TotalSessionAttendees,
		TotalEventAttendees:   snapshot.Summary.TotalEventAttendees,
		AverageAttendanceRate: snapshot.Summary.AverageAttendanceRate,
		CreatedAt:             stored.CreatedAt.UTC(),
		SubmittedAt:           utcPointer(stored.SubmittedAt),
		ReviewedAt:            utcPointer(stored.ReviewedAt),
	}, nil
}
