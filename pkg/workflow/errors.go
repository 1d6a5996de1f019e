package workflow

import (
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
)

// Error classes shared with the ledger so callers match one taxonomy.
var (
	ErrValidation = points.ErrValidation
	ErrNotFound   = points.ErrNotFound
)

var (
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrMissingEvidence     = errors.New("missing evidence")
	ErrLimitReached        = errors.New("limit reached")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidEngineConfig = errors.New("invalid engine config")
)

var (
	ErrReasonRequired       = fmt.Errorf("%w: reason is required", ErrValidation)
	ErrInsufficientPhotos   = fmt.Errorf("%w: not enough photo evidence", ErrValidation)
	ErrMissingAttendeeCount = fmt.Errorf("%w: attendees count is required", ErrValidation)
	ErrInvalidDraft         = fmt.Errorf("%w: invalid draft", ErrValidation)
	ErrUnknownKind          = fmt.Errorf("%w: unknown entity kind", ErrValidation)

	ErrClubNotFound           = fmt.Errorf("%w: club", ErrNotFound)
	ErrUserNotFound           = fmt.Errorf("%w: user", ErrNotFound)
	ErrMembershipNotFound     = fmt.Errorf("%w: membership", ErrNotFound)
	ErrEventNotFound          = fmt.Errorf("%w: event", ErrNotFound)
	ErrTaskNotFound           = fmt.Errorf("%w: task", ErrNotFound)
	ErrTaskCompletionNotFound = fmt.Errorf("%w: task completion", ErrNotFound)
	ErrReportNotFound         = fmt.Errorf("%w: report", ErrNotFound)
	ErrSessionNotFound        = fmt.Errorf("%w: session", ErrNotFound)
)
