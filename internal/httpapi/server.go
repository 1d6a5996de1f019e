// Package httpapi exposes the points ledger, the workflows, the leaderboards
// and monthly reports over HTTP. Every /api route requires a bearer token
// whose subject is a directory user id.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/leaderboard"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/report"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"github.com/cespare/xxhash/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 10 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// ErrInvalidRouterConfig is returned when a required dependency is missing.
var ErrInvalidRouterConfig = errors.New("invalid router config")

// Services bundles the domain services behind the routes.
type Services struct {
	Points      *points.Service
	Engine      *workflow.Engine
	Leaderboard *leaderboard.Service
	Reports     *report.Service
	Users       UserDirectory
	Throttle    SubmissionGuard
}

// SubmissionGuard rejects rapid repeats of one action by one actor.
type SubmissionGuard interface {
	Allow(ctx context.Context, actorID string, action string) (bool, error)
	Release(ctx context.Context, actorID string, action string) error
}

// Options carries the transport settings.
type Options struct {
	AllowedOrigins []string
	SigningKey     string
	Issuer         string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(options Options, services Services) (*gin.Engine, error) {
	if services.Points == nil || services.Engine == nil || services.Leaderboard == nil || services.Reports == nil || services.Users == nil {
		return nil, fmt.Errorf("%w: points, engine, leaderboard, reports and users are required", ErrInvalidRouterConfig)
	}
	if strings.TrimSpace(options.SigningKey) == "" {
		return nil, fmt.Errorf("%w: signing key is required", ErrInvalidRouterConfig)
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	handler := &httpHandler{
		logger:   logger,
		services: services,
		throttle: services.Throttle,
		timeout:  timeout,
	}
	auth := &authenticator{
		signingKey: []byte(options.SigningKey),
		issuer:     options.Issuer,
		users:      services.Users,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(options.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     options.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(auth.middleware())

	api.GET("/users/:id/points", handler.handleUserPoints)
	api.POST("/points/grants", requireRoles(directory.RoleAdmin, directory.RoleRegionalLeader), handler.throttled("points.grant"), handler.handleGrant)
	api.POST("/points/entries/:id/corrections", requireRoles(directory.RoleAdmin), handler.throttled("points.correct"), handler.handleCorrection)

	api.GET("/leaderboards/users", handler.handleUserLeaderboard)
	api.GET("/leaderboards/clubs", handler.handleClubLeaderboard)

	api.POST("/clubs/:id/memberships", handler.throttled("membership.create"), handler.handleRequestMembership)
	api.POST("/events", handler.throttled("event.create"), handler.handleProposeEvent)
	api.POST("/tasks", requireRoles(directory.RoleAdmin), handler.throttled("task.create"), handler.handleCreateTask)
	api.POST("/tasks/:id/completions", handler.throttled("task_completion.create"), handler.handleSubmitTask)
	api.POST("/sessions", handler.throttled("session.create"), handler.handleScheduleSession)
	api.PUT("/sessions/:id/attendance", handler.handleRecordAttendance)

	api.POST("/reports", handler.throttled("report.create"), handler.handleCreateReport)
	api.PATCH("/reports/:id", handler.handleUpdateReport)
	api.GET("/reports/:id", handler.handleGetReport)

	for path, kind := range transitionRoutes {
		api.POST("/"+path+"/:id/transitions", handler.throttled("transition."+kind.String()), handler.handleTransition(kind))
	}

	return router, nil
}

var transitionRoutes = map[string]workflow.Kind{
	"memberships":      workflow.KindMembership,
	"events":           workflow.KindEvent,
	"task-completions": workflow.KindTaskCompletion,
	"reports":          workflow.KindReport,
	"sessions":         workflow.KindSession,
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: defaultRequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", listenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type httpHandler struct {
	logger   *zap.Logger
	services Services
	throttle SubmissionGuard
	timeout  time.Duration
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

// throttled claims a per-actor slot for one exact submission before the
// handler runs and frees it again when the handler answered with an error.
func (handler *httpHandler) throttled(action string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if handler.throttle == nil {
			ctx.Next()
			return
		}
		actor, _ := currentActor(ctx)
		key, err := submissionKey(ctx, action)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "request body could not be read"))
			return
		}
		allowed, err := handler.throttle.Allow(ctx.Request.Context(), actor.ID, key)
		if err != nil {
			handler.logger.Warn("throttle unavailable", zap.String("action", key), zap.Error(err))
		}
		if !allowed {
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse(errorCodeThrottled, "repeated submission, try again shortly"))
			return
		}
		ctx.Next()
		if ctx.Writer.Status() >= http.StatusBadRequest {
			if releaseErr := handler.throttle.Release(ctx.Request.Context(), actor.ID, key); releaseErr != nil {
				handler.logger.Warn("throttle release failed", zap.String("action", key), zap.Error(releaseErr))
			}
		}
	}
}

// submissionKey names a repeated submission: the action, the path id and a
// digest of the body. Different targets or payloads get different keys.
func submissionKey(ctx *gin.Context, action string) (string, error) {
	key := action
	if id := strings.TrimSpace(ctx.Param("id")); id != "" {
		key += ":" + id
	}
	if ctx.Request.Body == nil {
		return key, nil
	}
	raw, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		return "", err
	}
	ctx.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
		key += ":" + strconv.FormatUint(xxhash.Sum64(trimmed), 16)
	}
	return key, nil
}

// respondError maps domain errors to statuses; unexpected ones are logged.
func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
		message = operation + " failed"
	}
	ctx.JSON(status, errorResponse(code, message))
}
