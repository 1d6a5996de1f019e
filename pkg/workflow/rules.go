package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

func membershipMachine() *Machine[*Membership] {
	return &Machine[*Membership]{
		kind: KindMembership,
		rules: map[Status]map[Status]Rule[*Membership]{
			StatusPending: {
				StatusApproved: {Action: actionApprove, Access: AccessReviewer, Guard: requireMembershipEvidence, Apply: reviewMembership, Grants: membershipGrants},
				StatusRejected: {Action: actionReject, Access: AccessReviewer, Apply: reviewMembership},
			},
			StatusRejected: {
				StatusPending: {Action: actionUndo, Access: AccessReviewer, Apply: reopenMembership},
			},
			StatusApproved: {
				StatusRemoved: {Action: actionRemove, Access: AccessReviewer, Apply: reviewMembership},
			},
		},
		load: func(ctx context.Context, store Store, membershipID string) (*Membership, error) {
			membership, err := store.GetMembership(ctx, membershipID)
			if err != nil {
				return nil, err
			}
			return &membership, nil
		},
		save: func(ctx context.Context, store Store, membership *Membership, from Status) (bool, error) {
			return store.UpdateMembership(ctx, *membership, from)
		},
	}
}

func requireMembershipEvidence(_ context.Context, _ Store, membership *Membership, change Change) error {
	if strings.TrimSpace(change.Metadata.EvidenceRef) == "" && strings.TrimSpace(membership.EvidenceRef) == "" {
		return fmt.Errorf("%w: membership %s has no evidence reference", ErrMissingEvidence, membership.ID)
	}
	return nil
}

func reviewMembership(_ context.Context, _ Store, membership *Membership, change Change) error {
	if evidence := strings.TrimSpace(change.Metadata.EvidenceRef); evidence != "" {
		membership.EvidenceRef = evidence
	}
	membership.Reason = strings.TrimSpace(change.Metadata.Reason)
	membership.ReviewerID = change.Actor.ID
	reviewedAt := change.At
	membership.ReviewedAt = &reviewedAt
	return nil
}

func reopenMembership(_ context.Context, _ Store, membership *Membership, _ Change) error {
	membership.Reason = ""
	membership.ReviewerID = ""
	membership.ReviewedAt = nil
	return nil
}

func membershipGrants(ctx context.Context, store Store, membership *Membership, change Change) ([]points.Grant, error) {
	club, err := store.GetClub(ctx, membership.Club)
	if err != nil {
		return nil, err
	}
	if club.AmbassadorID == "" {
		return nil, nil
	}
	return []points.Grant{{
		UserID:        club.AmbassadorID,
		Amount:        change.Policy.MembershipPoints,
		Reason:        membershipGrantReason,
		ReferenceType: points.ReferenceMember,
		ReferenceID:   membership.ID,
	}}, nil
}

func eventMachine() *Machine[*Event] {
	return &Machine[*Event]{
		kind: KindEvent,
		rules: map[Status]map[Status]Rule[*Event]{
			StatusPendingApproval: {
				StatusApproved: {Action: actionApprove, Access: AccessReviewer, Apply: reviewEvent},
				StatusRejected: {Action: actionReject, Access: AccessReviewer, Guard: requireEventReason, Apply: reviewEvent},
			},
			StatusApproved: {
				StatusCompleted: {Action: actionComplete, Access: AccessReviewer, Guard: requireCompletionEvidence, Apply: completeEvent, Grants: eventGrants},
				StatusCancelled: {Action: actionCancel, Access: AccessOwnerOrReviewer, Guard: requireEventReason, Apply: reviewEvent},
			},
		},
		load: func(ctx context.Context, store Store, eventID string) (*Event, error) {
			event, err := store.GetEvent(ctx, eventID)
			if err != nil {
				return nil, err
			}
			return &event, nil
		},
		save: func(ctx context.Context, store Store, event *Event, from Status) (bool, error) {
			return store.UpdateEvent(ctx, *event, from)
		},
	}
}

func requireEventReason(_ context.Context, _ Store, _ *Event, change Change) error {
	return requireReason(change)
}

func reviewEvent(_ context.Context, _ Store, event *Event, change Change) error {
	event.Reason = strings.TrimSpace(change.Metadata.Reason)
	event.ReviewerID = change.Actor.ID
	return nil
}

func requireCompletionEvidence(_ context.Context, _ Store, event *Event, change Change) error {
	attendees := change.Metadata.AttendeesCount
	if attendees == nil {
		attendees = event.AttendeesCount
	}
	if attendees == nil {
		return ErrMissingAttendeeCount
	}
	if *attendees < 0 {
		return fmt.Errorf("%w: attendees count %d is negative", ErrValidation, *attendees)
	}
	photos := len(distinct(event.PhotoRefs, change.Metadata.PhotoRefs))
	if photos < change.Policy.MinEventPhotos {
		return fmt.Errorf("%w: %d of %d photos", ErrInsufficientPhotos, photos, change.Policy.MinEventPhotos)
	}
	return nil
}

func completeEvent(_ context.Context, _ Store, event *Event, change Change) error {
	if change.Metadata.AttendeesCount != nil {
		attendees := *change.Metadata.AttendeesCount
		event.AttendeesCount = &attendees
	}
	event.PhotoRefs = distinct(event.PhotoRefs, change.Metadata.PhotoRefs)
	event.AttendeeIDs = distinct(event.AttendeeIDs, change.Metadata.AttendeeIDs)
	event.ReviewerID = change.Actor.ID
	completedAt := change.At
	event.CompletedAt = &completedAt
	return nil
}

func eventGrants(_ context.Context, _ Store, event *Event, change Change) ([]points.Grant, error) {
	grants := []points.Grant{{
		UserID:        event.OrganizerID,
		Amount:        event.PointsValue,
		Reason:        fmt.Sprintf(eventGrantReason, event.Title),
		ReferenceType: points.ReferenceEvent,
		ReferenceID:   event.ID,
	}}
	if change.Policy.EventAttendeePoints <= 0 {
		return grants, nil
	}
	for _, attendeeID := range event.AttendeeIDs {
		if attendeeID == event.OrganizerID {
			continue
		}
		grants = append(grants, points.Grant{
			UserID:        attendeeID,
			Amount:        change.Policy.EventAttendeePoints,
			Reason:        fmt.Sprintf(attendeeGrantReason, event.Title),
			ReferenceType: points.ReferenceEvent,
			ReferenceID:   event.ID,
		})
	}
	return grants, nil
}

func taskCompletionMachine() *Machine[*TaskCompletion] {
	return &Machine[*TaskCompletion]{
		kind: KindTaskCompletion,
		rules: map[Status]map[Status]Rule[*TaskCompletion]{
			StatusPending: {
				StatusApproved: {Action: actionApprove, Access: AccessReviewer, Apply: reviewTaskCompletion, Grants: taskCompletionGrants},
				StatusRejected: {Action: actionReject, Access: AccessReviewer, Apply: reviewTaskCompletion},
			},
			StatusRejected: {
				StatusPending: {Action: actionResubmit, Access: AccessOwner, Guard: requireSubmissionSlot, Apply: resubmitTaskCompletion},
			},
		},
		load: func(ctx context.Context, store Store, completionID string) (*TaskCompletion, error) {
			completion, err := store.GetTaskCompletion(ctx, completionID)
			if err != nil {
				return nil, err
			}
			return &completion, nil
		},
		save: func(ctx context.Context, store Store, completion *TaskCompletion, from Status) (bool, error) {
			return store.UpdateTaskCompletion(ctx, *completion, from)
		},
	}
}

func reviewTaskCompletion(_ context.Context, _ Store, completion *TaskCompletion, change Change) error {
	completion.Reason = strings.TrimSpace(change.Metadata.Reason)
	completion.ReviewerID = change.Actor.ID
	reviewedAt := change.At
	completion.ReviewedAt = &reviewedAt
	return nil
}

func requireSubmissionSlot(ctx context.Context, store Store, completion *TaskCompletion, _ Change) error {
	task, err := store.GetTask(ctx, completion.TaskID)
	if err != nil {
		return err
	}
	return checkSubmissionSlot(ctx, store, task, completion.UserID)
}

// checkSubmissionSlot reports LimitReached ahead of DuplicateSubmission.
func checkSubmissionSlot(ctx context.Context, store Store, task Task, userID string) error {
	approved, err := store.CountTaskCompletions(ctx, task.ID, userID, StatusApproved)
	if err != nil {
		return err
	}
	if approved >= int64(task.MaxCompletions) {
		return fmt.Errorf("%w: task %s allows %d completions", ErrLimitReached, task.ID, task.MaxCompletions)
	}
	pending, err := store.CountTaskCompletions(ctx, task.ID, userID, StatusPending)
	if err != nil {
		return err
	}
	if pending > 0 {
		return fmt.Errorf("%w: task %s already has a pending completion", ErrDuplicateSubmission, task.ID)
	}
	return nil
}

func resubmitTaskCompletion(_ context.Context, _ Store, completion *TaskCompletion, change Change) error {
	if evidence := strings.TrimSpace(change.Metadata.EvidenceRef); evidence != "" {
		completion.EvidenceRef = evidence
	}
	completion.Reason = ""
	completion.ReviewerID = ""
	completion.ReviewedAt = nil
	completion.SubmittedAt = change.At
	return nil
}

func taskCompletionGrants(ctx context.Context, store Store, completion *TaskCompletion, _ Change) ([]points.Grant, error) {
	task, err := store.GetTask(ctx, completion.TaskID)
	if err != nil {
		return nil, err
	}
	return []points.Grant{{
		UserID:        completion.UserID,
		Amount:        task.Points,
		Reason:        fmt.Sprintf(taskGrantReason, task.Title),
		ReferenceType: points.ReferenceTask,
		ReferenceID:   completion.ID,
	}}, nil
}

func reportMachine() *Machine[*Report] {
	return &Machine[*Report]{
		kind: KindReport,
		rules: map[Status]map[Status]Rule[*Report]{
			StatusDraft: {
				StatusSubmitted: {Action: actionSubmit, Access: AccessOwner, Apply: submitReport},
			},
			StatusSubmitted: {
				StatusApproved: {Action: actionApprove, Access: AccessReviewer, Apply: reviewReport, Grants: reportGrants},
				StatusRejected: {Action: actionReject, Access: AccessReviewer, Guard: requireReportReason, Apply: reviewReport},
			},
			StatusRejected: {
				StatusSubmitted: {Action: actionResubmit, Access: AccessOwner, Apply: submitReport},
			},
		},
		load: func(ctx context.Context, store Store, reportID string) (*Report, error) {
			report, err := store.GetReport(ctx, reportID)
			if err != nil {
				return nil, err
			}
			return &report, nil
		},
		save: func(ctx context.Context, store Store, report *Report, from Status) (bool, error) {
			return store.UpdateReport(ctx, *report, from)
		},
	}
}

func submitReport(_ context.Context, _ Store, report *Report, change Change) error {
	submittedAt := change.At
	report.SubmittedAt = &submittedAt
	report.Reason = ""
	report.ReviewerID = ""
	report.ReviewedAt = nil
	return nil
}

func requireReportReason(_ context.Context, _ Store, _ *Report, change Change) error {
	return requireReason(change)
}

func reviewReport(_ context.Context, _ Store, report *Report, change Change) error {
	report.Reason = strings.TrimSpace(change.Metadata.Reason)
	report.ReviewerID = change.Actor.ID
	reviewedAt := change.At
	report.ReviewedAt = &reviewedAt
	return nil
}

func reportGrants(_ context.Context, _ Store, report *Report, change Change) ([]points.Grant, error) {
	if change.Policy.ReportApprovalPoints <= 0 {
		return nil, nil
	}
	return []points.Grant{{
		UserID:        report.AuthorID,
		Amount:        change.Policy.ReportApprovalPoints,
		Reason:        fmt.Sprintf(reportGrantReason, report.Month, report.Year),
		ReferenceType: points.ReferenceReport,
		ReferenceID:   report.ID,
	}}, nil
}

func sessionMachine() *Machine[*Session] {
	return &Machine[*Session]{
		kind: KindSession,
		rules: map[Status]map[Status]Rule[*Session]{
			StatusScheduled: {
				StatusConfirmed: {Action: actionConfirm, Access: AccessOwnerOrReviewer, Apply: confirmSession, Grants: sessionGrants},
				StatusCancelled: {Action: actionCancel, Access: AccessOwnerOrReviewer, Guard: requireSessionReason, Apply: cancelSession},
			},
		},
		load: func(ctx context.Context, store Store, sessionID string) (*Session, error) {
			session, err := store.GetSession(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return &session, nil
		},
		save: func(ctx context.Context, store Store, session *Session, from Status) (bool, error) {
			return store.UpdateSession(ctx, *session, from)
		},
	}
}

func confirmSession(ctx context.Context, store Store, session *Session, change Change) error {
	attendance, err := store.ListAttendance(ctx, session.ID)
	if err != nil {
		return err
	}
	present := 0
	for _, record := range attendance {
		if record.Present {
			present++
		}
	}
	session.PresentCount = present
	session.TotalCount = len(attendance)
	session.AttendanceRate = attendanceRate(present, len(attendance))
	confirmedAt := change.At
	session.ConfirmedAt = &confirmedAt
	return nil
}

func requireSessionReason(_ context.Context, _ Store, _ *Session, change Change) error {
	return requireReason(change)
}

func cancelSession(_ context.Context, _ Store, session *Session, change Change) error {
	session.Reason = strings.TrimSpace(change.Metadata.Reason)
	return nil
}

func sessionGrants(ctx context.Context, store Store, session *Session, change Change) ([]points.Grant, error) {
	grants := []points.Grant{{
		UserID:        session.HostID,
		Amount:        session.PointsValue,
		Reason:        fmt.Sprintf(sessionGrantReason, session.Title),
		ReferenceType: points.ReferenceSession,
		ReferenceID:   session.ID,
	}}
	if change.Policy.SessionAttendeePoints <= 0 {
		return grants, nil
	}
	attendance, err := store.ListAttendance(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	for _, record := range attendance {
		if !record.Present || record.UserID == session.HostID {
			continue
		}
		grants = append(grants, points.Grant{
			UserID:        record.UserID,
			Amount:        change.Policy.SessionAttendeePoints,
			Reason:        fmt.Sprintf(sessionAttendeeReason, session.Title),
			ReferenceType: points.ReferenceSession,
			ReferenceID:   session.ID,
		})
	}
	return grants, nil
}

// attendanceRate is the share of present records in percent, nil without records.
func attendanceRate(present int, total int) *float64 {
	if total == 0 {
		return nil
	}
	rate := float64(present) * 100 / float64(total)
	return &rate
}

func requireReason(change Change) error {
	if strings.TrimSpace(change.Metadata.Reason) == "" {
		return fmt.Errorf("%w: %s -> %s", ErrReasonRequired, change.From, change.To)
	}
	return nil
}

// distinct merges id lists, trimming blanks and keeping first occurrences in order.
func distinct(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, list := range lists {
		for _, value := range list {
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
			merged = append(merged, trimmed)
		}
	}
	return merged
}
