package report

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"github.com/google/uuid"
)

const (
	actionCreate = "create"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)

// Record is a stored report together with its frozen snapshot.
type Record struct {
	Report   workflow.Report
	Snapshot Snapshot
}

// Store persists reports. CreateReport inserts the report and its activity
// entry atomically and fails with workflow.ErrDuplicateSubmission when the
// author already has a report for the month.
type Store interface {
	ListLedClubIDs(ctx context.Context, userID string) ([]string, error)
	CreateReport(ctx context.Context, record Record, activity workflow.ActivityEntry) error
	GetReportRecord(ctx context.Context, reportID string) (Record, error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTransitionLogger reports creations through the workflow logger.
func WithTransitionLogger(logger workflow.TransitionLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// Service files monthly reports.
type Service struct {
	builder *Builder
	store   Store
	nowFn   func() time.Time
	logger  workflow.TransitionLogger
}

// NewService wires a Service.
func NewService(builder *Builder, store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if builder == nil || store == nil || now == nil {
		return nil, fmt.Errorf("%w: builder, store and clock are required", ErrInvalidBuilderInput)
	}
	service := &Service{builder: builder, store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Create builds the actor's snapshot for the month and stores it as a draft.
// Without explicit clubIDs the clubs the actor leads as ambassador are used.
func (service *Service) Create(ctx context.Context, actor directory.Actor, month int, year int, clubIDs []string) (Record, error) {
	var record Record
	err := actor.Validate()
	if err == nil {
		record, err = service.create(ctx, actor, month, year, clubIDs)
	}
	if service.logger != nil {
		entry := workflow.TransitionLog{
			Kind:     workflow.KindReport,
			EntityID: record.Report.ID,
			Action:   actionCreate,
			ActorID:  actor.ID,
			To:       workflow.StatusDraft,
			Status:   operationStatusOK,
			Error:    err,
		}
		if err != nil {
			entry.Status = operationStatusError
		}
		service.logger.LogTransition(ctx, entry)
	}
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (service *Service) create(ctx context.Context, actor directory.Actor, month int, year int, clubIDs []string) (Record, error) {
	clubs, err := service.reportClubs(ctx, actor, clubIDs)
	if err != nil {
		return Record{}, err
	}
	snapshot, err := service.builder.BuildSnapshot(ctx, actor.ID, month, year, clubs)
	if err != nil {
		return Record{}, err
	}
	createdAt := service.nowFn().UTC()
	record := Record{
		Report: workflow.Report{
			ID:        uuid.NewString(),
			AuthorID:  actor.ID,
			Month:     month,
			Year:      year,
			Status:    workflow.StatusDraft,
			CreatedAt: createdAt,
		},
		Snapshot: snapshot,
	}
	activity := workflow.ActivityEntry{
		ID:         uuid.NewString(),
		EntityType: workflow.KindReport,
		EntityID:   record.Report.ID,
		Action:     actionCreate,
		ActorID:    actor.ID,
		Details: map[string]any{
			"month":             month,
			"year":              year,
			"status":            workflow.StatusDraft.String(),
			"club_ids":          clubs,
			"sessions_count":    snapshot.Summary.SessionsCount,
			"events_count":      snapshot.Summary.EventsCount,
			"new_members_count": snapshot.Summary.NewMembersCount,
			"points_earned":     snapshot.Summary.PointsEarned,
		},
		CreatedAt: createdAt,
	}
	if err := service.store.CreateReport(ctx, record, activity); err != nil {
		return Record{}, err
	}
	return record, nil
}

// reportClubs resolves the clubs a report covers. Reviewers may name any club;
// everyone else is limited to the clubs they lead.
func (service *Service) reportClubs(ctx context.Context, actor directory.Actor, clubIDs []string) ([]string, error) {
	requested := normalizeIDs(clubIDs)
	if len(requested) > 0 && actor.Role.Reviewer() {
		return requested, nil
	}
	led, err := service.store.ListLedClubIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(requested) == 0 {
		return led, nil
	}
	ledSet := make(map[string]struct{}, len(led))
	for _, clubID := range led {
		ledSet[clubID] = struct{}{}
	}
	for _, clubID := range requested {
		if _, ok := ledSet[clubID]; !ok {
			return nil, fmt.Errorf("%w: %s does not lead club %s", workflow.ErrForbidden, actor.ID, clubID)
		}
	}
	return requested, nil
}

// Get returns a stored report to its author or a reviewer.
func (service *Service) Get(ctx context.Context, actor directory.Actor, reportID string) (Record, error) {
	if err := actor.Validate(); err != nil {
		return Record{}, err
	}
	record, err := service.store.GetReportRecord(ctx, reportID)
	if err != nil {
		return Record{}, err
	}
	if !actor.Owns(record.Report.AuthorID) && !actor.Role.Reviewer() {
		return Record{}, fmt.Errorf("%w: %s may not read report %s", workflow.ErrForbidden, actor.ID, reportID)
	}
	return record, nil
}
