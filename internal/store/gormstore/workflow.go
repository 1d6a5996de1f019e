package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) InsertMembership(ctx context.Context, membership workflow.Membership) error {
	model := Membership{
		ID:          membership.ID,
		ClubID:      membership.Club,
		UserID:      membership.UserID,
		Status:      membership.Status.String(),
		EvidenceRef: membership.EvidenceRef,
		Reason:      membership.Reason,
		ReviewerID:  nullableString(membership.ReviewerID),
		RequestedAt: membership.RequestedAt.UTC(),
		ReviewedAt:  utcPointer(membership.ReviewedAt),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintLiveMembership) {
		return wrapStoreError(errorSubjectMembership, errorCodeDuplicate, workflow.ErrDuplicateSubmission)
	}
	if err != nil {
		return wrapStoreError(errorSubjectMembership, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetMembership(ctx context.Context, membershipID string) (workflow.Membership, error) {
	var model Membership
	if err := store.take(ctx, &model, membershipID); err != nil {
		return workflow.Membership{}, notFound(errorSubjectMembership, workflow.ErrMembershipNotFound, err)
	}
	return workflow.Membership{
		ID:          model.ID,
		Club:        model.ClubID,
		UserID:      model.UserID,
		Status:      workflow.Status(model.Status),
		EvidenceRef: model.EvidenceRef,
		Reason:      model.Reason,
		ReviewerID:  stringOrEmpty(model.ReviewerID),
		RequestedAt: model.RequestedAt.UTC(),
		ReviewedAt:  utcPointer(model.ReviewedAt),
	}, nil
}

func (store *Store) UpdateMembership(ctx context.Context, membership workflow.Membership, from workflow.Status) (bool, error) {
	updated, err := store.updateWhereStatus(ctx, &Membership{}, membership.ID, from, map[string]any{
		"status":       membership.Status.String(),
		"evidence_ref": membership.EvidenceRef,
		"reason":       membership.Reason,
		"reviewer_id":  nullableString(membership.ReviewerID),
		"reviewed_at":  utcPointer(membership.ReviewedAt),
	})
	if isUniqueConflict(err, constraintLiveMembership) {
		return false, wrapStoreError(errorSubjectMembership, errorCodeDuplicate, workflow.ErrDuplicateSubmission)
	}
	if err != nil {
		return false, wrapStoreError(errorSubjectMembership, errorCodeUpdateStatus, err)
	}
	return updated, nil
}

func (store *Store) InsertEvent(ctx context.Context, event workflow.Event) error {
	photoRefs, err := encodeJSON(event.PhotoRefs, emptyArrayJSON)
	if err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeEncode, err)
	}
	attendeeIDs, err := encodeJSON(event.AttendeeIDs, emptyArrayJSON)
	if err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeEncode, err)
	}
	model := Event{
		ID:             event.ID,
		ClubID:         event.Club,
		OrganizerID:    event.OrganizerID,
		Title:          event.Title,
		Description:    event.Description,
		StartsAt:       event.StartsAt.UTC(),
		PointsValue:    event.PointsValue,
		Status:         event.Status.String(),
		AttendeesCount: event.AttendeesCount,
		PhotoRefs:      photoRefs,
		AttendeeIDs:    attendeeIDs,
		Reason:         event.Reason,
		ReviewerID:     nullableString(event.ReviewerID),
		CreatedAt:      event.CreatedAt.UTC(),
		CompletedAt:    utcPointer(event.CompletedAt),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetEvent(ctx context.Context, eventID string) (workflow.Event, error) {
	var model Event
	if err := store.take(ctx, &model, eventID); err != nil {
		return workflow.Event{}, notFound(errorSubjectEvent, workflow.ErrEventNotFound, err)
	}
	event := workflow.Event{
		ID:             model.ID,
		Club:           model.ClubID,
		OrganizerID:    model.OrganizerID,
		Title:          model.Title,
		Description:    model.Description,
		StartsAt:       model.StartsAt.UTC(),
		PointsValue:    model.PointsValue,
		Status:         workflow.Status(model.Status),
		AttendeesCount: model.AttendeesCount,
		Reason:         model.Reason,
		ReviewerID:     stringOrEmpty(model.ReviewerID),
		CreatedAt:      model.CreatedAt.UTC(),
		CompletedAt:    utcPointer(model.CompletedAt),
	}
	if err := decodeJSON(model.PhotoRefs, &event.PhotoRefs); err != nil {
		return workflow.Event{}, wrapStoreError(errorSubjectEvent, errorCodeDecode, err)
	}
	if err := decodeJSON(model.AttendeeIDs, &event.AttendeeIDs); err != nil {
		return workflow.Event{}, wrapStoreError(errorSubjectEvent, errorCodeDecode, err)
	}
	return event, nil
}

func (store *Store) UpdateEvent(ctx context.Context, event workflow.Event, from workflow.Status) (bool, error) {
	photoRefs, err := encodeJSON(event.PhotoRefs, emptyArrayJSON)
	if err != nil {
		return false, wrapStoreError(errorSubjectEvent, errorCodeEncode, err)
	}
	attendeeIDs, err := encodeJSON(event.AttendeeIDs, emptyArrayJSON)
	if err != nil {
		return false, wrapStoreError(errorSubjectEvent, errorCodeEncode, err)
	}
	updated, err := store.updateWhereStatus(ctx, &Event{}, event.ID, from, map[string]any{
		"status":          event.Status.String(),
		"attendees_count": event.AttendeesCount,
		"photo_refs":      photoRefs,
		"attendee_ids":    attendeeIDs,
		"reason":          event.Reason,
		"reviewer_id":     nullableString(event.ReviewerID),
		"completed_at":    utcPointer(event.CompletedAt),
	})
	if err != nil {
		return false, wrapStoreError(errorSubjectEvent, errorCodeUpdateStatus, err)
	}
	return updated, nil
}

func (store *Store) InsertTask(ctx context.Context, task workflow.Task) error {
	model := Task{
		ID:             task.ID,
		Title:          task.Title,
		Description:    task.Description,
		Points:         task.Points,
		MaxCompletions: task.MaxCompletions,
		CreatedBy:      task.CreatedBy,
		CreatedAt:      task.CreatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectTask, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetTask(ctx context.Context, taskID string) (workflow.Task, error) {
	var model Task
	if err := store.take(ctx, &model, taskID); err != nil {
		return workflow.Task{}, notFound(errorSubjectTask, workflow.ErrTaskNotFound, err)
	}
	return workflow.Task{
		ID:             model.ID,
		Title:          model.Title,
		Description:    model.Description,
		Points:         model.Points,
		MaxCompletions: model.MaxCompletions,
		CreatedBy:      model.CreatedBy,
		CreatedAt:      model.CreatedAt.UTC(),
	}, nil
}

func (store *Store) InsertTaskCompletion(ctx context.Context, completion workflow.TaskCompletion) error {
	model := TaskCompletion{
		ID:          completion.ID,
		TaskID:      completion.TaskID,
		UserID:      completion.UserID,
		Status:      completion.Status.String(),
		EvidenceRef: completion.EvidenceRef,
		Reason:      completion.Reason,
		ReviewerID:  nullableString(completion.ReviewerID),
		SubmittedAt: completion.SubmittedAt.UTC(),
		ReviewedAt:  utcPointer(completion.ReviewedAt),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintPendingCompletion) {
		return wrapStoreError(errorSubjectCompletion, errorCodeDuplicate, workflow.ErrDuplicateSubmission)
	}
	if err != nil {
		return wrapStoreError(errorSubjectCompletion, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetTaskCompletion(ctx context.Context, completionID string) (workflow.TaskCompletion, error) {
	var model TaskCompletion
	if err := store.take(ctx, &model, completionID); err != nil {
		return workflow.TaskCompletion{}, notFound(errorSubjectCompletion, workflow.ErrTaskCompletionNotFound, err)
	}
	return workflow.TaskCompletion{
		ID:          model.ID,
		TaskID:      model.TaskID,
		UserID:      model.UserID,
		Status:      workflow.Status(model.Status),
		EvidenceRef: model.EvidenceRef,
		Reason:      model.Reason,
		ReviewerID:  stringOrEmpty(model.ReviewerID),
		SubmittedAt: model.SubmittedAt.UTC(),
		ReviewedAt:  utcPointer(model.ReviewedAt),
	}, nil
}

func (store *Store) UpdateTaskCompletion(ctx context.Context, completion workflow.TaskCompletion, from workflow.Status) (bool, error) {
	updated, err := store.updateWhereStatus(ctx, &TaskCompletion{}, completion.ID, from, map[string]any{
		"status":       completion.Status.String(),
		"evidence_ref": completion.EvidenceRef,
		"reason":       completion.Reason,
		"reviewer_id":  nullableString(completion.ReviewerID),
		"submitted_at": completion.SubmittedAt.UTC(),
		"reviewed_at":  utcPointer(completion.ReviewedAt),
	})
	if isUniqueConflict(err, constraintPendingCompletion) {
		return false, wrapStoreError(errorSubjectCompletion, errorCodeDuplicate, workflow.ErrDuplicateSubmission)
	}
	if err != nil {
		return false, wrapStoreError(errorSubjectCompletion, errorCodeUpdateStatus, err)
	}
	return updated, nil
}

func (store *Store) CountTaskCompletions(ctx context.Context, taskID string, userID string, status workflow.Status) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&TaskCompletion{}).
		Where("task_id = ? AND user_id = ? AND status = ?", taskID, userID, status.String()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectCompletion, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) GetReport(ctx context.Context, reportID string) (workflow.Report, error) {
	var model Report
	if err := store.take(ctx, &model, reportID); err != nil {
		return workflow.Report{}, notFound(errorSubjectReport, workflow.ErrReportNotFound, err)
	}
	return mapReport(model), nil
}

// UpdateReport writes the reviewable columns only; snapshot columns are never touched.
func (store *Store) UpdateReport(ctx context.Context, report workflow.Report, from workflow.Status) (bool, error) {
	updated, err := store.updateWhereStatus(ctx, &Report{}, report.ID, from, map[string]any{
		"status":       report.Status.String(),
		"highlights":   report.Highlights,
		"challenges":   report.Challenges,
		"next_steps":   report.NextSteps,
		"reason":       report.Reason,
		"reviewer_id":  nullableString(report.ReviewerID),
		"submitted_at": utcPointer(report.SubmittedAt),
		"reviewed_at":  utcPointer(report.ReviewedAt),
	})
	if err != nil {
		return false, wrapStoreError(errorSubjectReport, errorCodeUpdateStatus, err)
	}
	return updated, nil
}

func (store *Store) InsertSession(ctx context.Context, session workflow.Session) error {
	model := Session{
		ID:             session.ID,
		ClubID:         session.Club,
		HostID:         session.HostID,
		Title:          session.Title,
		ScheduledAt:    session.ScheduledAt.UTC(),
		PointsValue:    session.PointsValue,
		Status:         session.Status.String(),
		PresentCount:   session.PresentCount,
		TotalCount:     session.TotalCount,
		AttendanceRate: session.AttendanceRate,
		Reason:         session.Reason,
		ConfirmedAt:    utcPointer(session.ConfirmedAt),
		CreatedAt:      session.CreatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetSession(ctx context.Context, sessionID string) (workflow.Session, error) {
	var model Session
	if err := store.take(ctx, &model, sessionID); err != nil {
		return workflow.Session{}, notFound(errorSubjectSession, workflow.ErrSessionNotFound, err)
	}
	return workflow.Session{
		ID:             model.ID,
		Club:           model.ClubID,
		HostID:         model.HostID,
		Title:          model.Title,
		ScheduledAt:    model.ScheduledAt.UTC(),
		PointsValue:    model.PointsValue,
		Status:         workflow.Status(model.Status),
		PresentCount:   model.PresentCount,
		TotalCount:     model.TotalCount,
		AttendanceRate: model.AttendanceRate,
		Reason:         model.Reason,
		ConfirmedAt:    utcPointer(model.ConfirmedAt),
		CreatedAt:      model.CreatedAt.UTC(),
	}, nil
}

func (store *Store) UpdateSession(ctx context.Context, session workflow.Session, from workflow.Status) (bool, error) {
	updated, err := store.updateWhereStatus(ctx, &Session{}, session.ID, from, map[string]any{
		"status":          session.Status.String(),
		"present_count":   session.PresentCount,
		"total_count":     session.TotalCount,
		"attendance_rate": session.AttendanceRate,
		"reason":          session.Reason,
		"confirmed_at":    utcPointer(session.ConfirmedAt),
	})
	if err != nil {
		return false, wrapStoreError(errorSubjectSession, errorCodeUpdateStatus, err)
	}
	return updated, nil
}

// UpsertAttendance keeps one record per (session, user); the latest call wins.
func (store *Store) UpsertAttendance(ctx context.Context, attendance workflow.SessionAttendance) error {
	model := SessionAttendance{
		SessionID:  attendance.SessionID,
		UserID:     attendance.UserID,
		Present:    attendance.Present,
		RecordedAt: attendance.RecordedAt.UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"present", "recorded_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectAttendance, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) ListAttendance(ctx context.Context, sessionID string) ([]workflow.SessionAttendance, error) {
	var rows []SessionAttendance
	err := store.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAttendance, errorCodeList, err)
	}
	records := make([]workflow.SessionAttendance, 0, len(rows))
	for _, row := range rows {
		records = append(records, workflow.SessionAttendance{
			SessionID:  row.SessionID,
			UserID:     row.UserID,
			Present:    row.Present,
			RecordedAt: row.RecordedAt.UTC(),
		})
	}
	return records, nil
}

func (store *Store) AppendActivity(ctx context.Context, entry workflow.ActivityEntry) error {
	details, err := encodeJSON(entry.Details, emptyObjectJSON)
	if err != nil {
		return wrapStoreError(errorSubjectActivity, errorCodeEncode, err)
	}
	model := ActivityLog{
		ID:         entry.ID,
		EntityType: entry.EntityType.String(),
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		Details:    details,
		CreatedAt:  entry.CreatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectActivity, errorCodeInsert, err)
	}
	return nil
}

// ListActivity returns the audit trail of one entity, oldest first.
func (store *Store) ListActivity(ctx context.Context, kind workflow.Kind, entityID string) ([]workflow.ActivityEntry, error) {
	var rows []ActivityLog
	err := store.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", kind.String(), entityID).
		Order("created_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectActivity, errorCodeList, err)
	}
	entries := make([]workflow.ActivityEntry, 0, len(rows))
	for _, row := range rows {
		entry := workflow.ActivityEntry{
			ID:         row.ID,
			EntityType: workflow.Kind(row.EntityType),
			EntityID:   row.EntityID,
			Action:     row.Action,
			ActorID:    row.ActorID,
			CreatedAt:  row.CreatedAt.UTC(),
		}
		if err := decodeJSON(row.Details, &entry.Details); err != nil {
			return nil, wrapStoreError(errorSubjectActivity, errorCodeDecode, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) take(ctx context.Context, model any, id string) error {
	return store.db.WithContext(ctx).Where("id = ?", id).Take(model).Error
}

// updateWhereStatus applies values only while the row still holds status from.
func (store *Store) updateWhereStatus(ctx context.Context, model any, id string, from workflow.Status, values map[string]any) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND status = ?", id, from.String()).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func notFound(subject string, sentinel error, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(subject, errorCodeGet, sentinel)
	}
	return wrapStoreError(subject, errorCodeGet, err)
}

func mapReport(model Report) workflow.Report {
	return workflow.Report{
		ID:          model.ID,
		AuthorID:    model.AuthorID,
		Month:       model.Month,
		Year:        model.Year,
		Status:      workflow.Status(model.Status),
		Highlights:  model.Highlights,
		Challenges:  model.Challenges,
		NextSteps:   model.NextSteps,
		Reason:      model.Reason,
		ReviewerID:  stringOrEmpty(model.ReviewerID),
		CreatedAt:   model.CreatedAt.UTC(),
		SubmittedAt: utcPointer(model.SubmittedAt),
		ReviewedAt:  utcPointer(model.ReviewedAt),
	}
}
