package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	errorCodeUnauthorized       = "unauthorized"
	errorCodeForbidden          = "forbidden"
	errorCodeInvalidPayload     = "invalid_payload"
	errorCodeInvalidTransition  = "invalid_transition"
	errorCodeDuplicateReference = "duplicate_reference"
	errorCodeDuplicate          = "duplicate_submission"
	errorCodeMissingEvidence    = "missing_evidence"
	errorCodeLimitReached       = "limit_reached"
	errorCodeNotFound           = "not_found"
	errorCodeValidation         = "validation_error"
	errorCodeThrottled          = "throttled"
	errorCodeInternal           = "internal_error"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Specific sentinels come before the ErrValidation and ErrNotFound classes they may wrap.
var errorMappings = []errorMapping{
	{target: workflow.ErrForbidden, status: http.StatusForbidden, code: errorCodeForbidden},
	{target: workflow.ErrInvalidTransition, status: http.StatusConflict, code: errorCodeInvalidTransition},
	{target: points.ErrDuplicateReference, status: http.StatusConflict, code: errorCodeDuplicateReference},
	{target: workflow.ErrDuplicateSubmission, status: http.StatusConflict, code: errorCodeDuplicate},
	{target: workflow.ErrMissingEvidence, status: http.StatusUnprocessableEntity, code: errorCodeMissingEvidence},
	{target: workflow.ErrLimitReached, status: http.StatusUnprocessableEntity, code: errorCodeLimitReached},
	{target: points.ErrNotFound, status: http.StatusNotFound, code: errorCodeNotFound},
	{target: points.ErrValidation, status: http.StatusBadRequest, code: errorCodeValidation},
	{target: directory.ErrInvalidActor, status: http.StatusBadRequest, code: errorCodeValidation},
}

func classifyError(err error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return mapping.status, mapping.code
		}
	}
	return http.StatusInternalServerError, errorCodeInternal
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// formatValidationError turns binding failures into one readable line.
func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, fieldErrorMessage(fieldError))
	}
	return strings.Join(messages, "; ")
}

func fieldErrorMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()
	switch fieldError.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fieldError.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
