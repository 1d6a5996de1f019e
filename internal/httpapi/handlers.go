package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/leaderboard"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"github.com/gin-gonic/gin"
)

const defaultMaxCompletions = 1

// bindJSON decodes the body; optional bodies may be empty.
func bindJSON(ctx *gin.Context, target any, optional bool) bool {
	err := ctx.ShouldBindJSON(target)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, formatValidationError(err)))
	return false
}

func (handler *httpHandler) actor(ctx *gin.Context) (directory.Actor, bool) {
	actor, ok := currentActor(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing actor"))
	}
	return actor, ok
}

func (handler *httpHandler) handleUserPoints(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	userID := ctx.Param("id")
	total, err := handler.services.Points.SumByUser(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "sum points", err)
		return
	}
	entries, err := handler.services.Points.ListByUser(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "list points", err)
		return
	}
	ctx.JSON(http.StatusOK, pointsPayload{UserID: strings.TrimSpace(userID), Total: total, Entries: newEntryPayloads(entries)})
}

func (handler *httpHandler) handleGrant(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request grantRequest
	if !bindJSON(ctx, &request, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entry, err := handler.services.Points.Grant(requestCtx, actor, request.UserID, request.Amount, request.Reason, request.ReferenceID)
	if err != nil {
		handler.respondError(ctx, "grant points", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"entry": newEntryPayload(entry)})
}

func (handler *httpHandler) handleCorrection(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request correctionRequest
	if !bindJSON(ctx, &request, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entry, err := handler.services.Points.Correct(requestCtx, actor, ctx.Param("id"), request.Reason)
	if err != nil {
		handler.respondError(ctx, "correct entry", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"entry": newEntryPayload(entry)})
}

func (handler *httpHandler) handleUserLeaderboard(ctx *gin.Context) {
	population := leaderboard.Population{}
	for _, raw := range strings.Split(ctx.Query("role"), ",") {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			population.Roles = append(population.Roles, directory.Role(trimmed))
		}
	}
	includeSecondary := false
	if raw := strings.TrimSpace(ctx.Query("include_secondary")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeValidation, "include_secondary must be a boolean"))
			return
		}
		includeSecondary = parsed
	}
	scope := leaderboard.Scope{RegionID: ctx.Query("region_id"), ClubID: ctx.Query("club_id")}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.services.Leaderboard.ComputeLeaderboard(requestCtx, population, scope, includeSecondary)
	if err != nil {
		handler.respondError(ctx, "compute leaderboard", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": newRankedPayloads(entries)})
}

func (handler *httpHandler) handleClubLeaderboard(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	standings, err := handler.services.Leaderboard.ComputeClubLeaderboard(requestCtx, ctx.Query("region_id"))
	if err != nil {
		handler.respondError(ctx, "compute club leaderboard", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"clubs": newStandingPayloads(standings)})
}

func (handler *httpHandler) handleRequestMembership(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request membershipRequest
	if !bindJSON(ctx, &request, true) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	membership, err := handler.services.Engine.RequestMembership(requestCtx, actor, ctx.Param("id"), request.UserID, request.EvidenceRef)
	if err != nil {
		handler.respondError(ctx, "request membership", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"membership": newMembershipPayload(membership)})
}

func (handler *httpHandler) handleProposeEvent(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request eventRequest
	if !bindJSON(ctx, &request, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	event, err := handler.services.Engine.ProposeEvent(requestCtx, actor, workflow.EventDraft{
		ClubID:      request.ClubID,
		Title:       request.Title,
		Description: request.Description,
		StartsAt:    request.StartsAt,
		PointsValue: request.PointsValue,
		PhotoRefs:   request.PhotoRefs,
	})
	if err != nil {
		handler.respondError(ctx, "propose event", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"event": newEventPayload(event)})
}

func (handler *httpHandler) handleCreateTask(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request taskRequest
	if !bindJSON(ctx, &request, false) {
		return
	}
	if request.MaxCompletions == 0 {
		request.MaxCompletions = defaultMaxCompletions
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	task, err := handler.services.Engine.CreateTask(requestCtx, actor, workflow.TaskDraft{
		Title:          request.Title,
		Description:    request.Description,
		Points:         request.Points,
		MaxCompletions: request.MaxCompletions,
	})
	if err != nil {
		handler.respondError(ctx, "create task", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"task": taskPayload{
		ID:             task.ID,
		Title:          task.Title,
		Description:    task.Description,
		Points:         task.Points,
		MaxCompletions: task.MaxCompletions,
	}})
}

func (handler *httpHandler) handleSubmitTask(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request completionRequest
	if !bindJSON(ctx, &request, true) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	completion, err := handler.services.Engine.SubmitTask(requestCtx, actor, ctx.Param("id"), request.EvidenceRef)
	if err != nil {
		handler.respondError(ctx, "submit task", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"completion": completionPayload{
		ID:          completion.ID,
		TaskID:      completion.TaskID,
		UserID:      completion.UserID,
		Status:      completion.Status.String(),
		EvidenceRef: completion.EvidenceRef,
		SubmittedAt: completion.SubmittedAt,
	}})
}

func (handler *httpHandler) handleScheduleSession(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request sessionRequest
	if !bindJSON(ctx, &request, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	session, err := handler.services.Engine.ScheduleSession(requestCtx, actor, workflow.SessionDraft{
		ClubID:      request.ClubID,
		Title:       request.Title,
		ScheduledAt: request.ScheduledAt,
		PointsValue: request.PointsValue,
	})
	if err != nil {
		handler.respondError(ctx, "schedule session", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"session": sessionPayload{
		ID:          session.ID,
		ClubID:      session.Club,
		HostID:      session.HostID,
		Title:       session.Title,
		ScheduledAt: session.ScheduledAt,
		PointsValue: session.PointsValue,
		Status:      session.Status.String(),
	}})
}

func (handler *httpHandler) handleRecordAttendance(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request attendanceRequest
	if !bindJSON(ctx, &request, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	attendance, err := handler.services.Engine.RecordAttendance(requestCtx, actor, ctx.Param("id"), request.UserID, *request.Present)
	if err != nil {
		handler.respondError(ctx, "record attendance", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"attendance": attendancePayload(attendance)})
}

func (handler *httpHandler) handleCreateReport(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request reportRequest
	if !bindJSON(ctx, &request, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	record, err := handler.services.Reports.Create(requestCtx, actor, request.Month, request.Year, request.ClubIDs)
	if err != nil {
		handler.respondError(ctx, "create report", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"report": newReportRecordPayload(record)})
}

func (handler *httpHandler) handleUpdateReport(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	var request reportEditRequest
	if !bindJSON(ctx, &request, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	updated, err := handler.services.Engine.UpdateReport(requestCtx, actor, ctx.Param("id"), workflow.ReportEdit{
		Highlights: request.Highlights,
		Challenges: request.Challenges,
		NextSteps:  request.NextSteps,
	})
	if err != nil {
		handler.respondError(ctx, "update report", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"report": newReportPayload(updated)})
}

func (handler *httpHandler) handleGetReport(ctx *gin.Context) {
	actor, ok := handler.actor(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	record, err := handler.services.Reports.Get(requestCtx, actor, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "get report", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"report": newReportRecordPayload(record)})
}

func (handler *httpHandler) handleTransition(kind workflow.Kind) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		actor, ok := handler.actor(ctx)
		if !ok {
			return
		}
		var request transitionRequest
		if !bindJSON(ctx, &request, false) {
			return
		}
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		target := workflow.Status(strings.TrimSpace(request.Target))
		result, err := handler.services.Engine.Transition(requestCtx, kind, ctx.Param("id"), target, actor, request.metadata())
		if err != nil {
			handler.respondError(ctx, "transition "+kind.String(), err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"result": newResultPayload(result)})
	}
}
