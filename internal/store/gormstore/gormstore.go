package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintPointReference    = "uniq_point_reference"
	constraintLiveMembership    = "uniq_live_membership"
	constraintPendingCompletion = "uniq_pending_completion"
	constraintReportPeriod      = "uniq_report_period"
	emptyArrayJSON              = "[]"
	emptyObjectJSON             = "{}"
	pgUniqueViolationCode       = "23505"
	sqliteConstraintUnique      = 2067
	sqliteConstraintPrimaryKey  = 1555
	errorOperationStore         = "store"
	errorSubjectActivity        = "activity"
	errorSubjectAttendance      = "attendance"
	errorSubjectClub            = "club"
	errorSubjectCompletion      = "task_completion"
	errorSubjectEntry           = "entry"
	errorSubjectEvent           = "event"
	errorSubjectMembership      = "membership"
	errorSubjectRegion          = "region"
	errorSubjectReport          = "report"
	errorSubjectSession         = "session"
	errorSubjectSum             = "sum"
	errorSubjectTask            = "task"
	errorSubjectUser            = "user"
	errorCodeCount              = "count"
	errorCodeDecode             = "decode"
	errorCodeDuplicate          = "duplicate"
	errorCodeEncode             = "encode"
	errorCodeGet                = "get"
	errorCodeInsert             = "insert"
	errorCodeList               = "list"
	errorCodeSave               = "save"
	errorCodeUpdateStatus       = "update_status"
	errorCodeUpsert             = "upsert"
)

// Store implements the ledger, workflow, leaderboard and report contracts using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore points.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// InTransaction executes fn within a transaction shared by the workflow and the ledger.
func (store *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, txStore workflow.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// Ledger returns the store itself, bound to the same transaction.
func (store *Store) Ledger() points.Store {
	return store
}

func wrapStoreError(subject string, code string, err error) error {
	return points.WrapError(errorOperationStore, subject, code, err)
}

// isUniqueConflict reports whether err violates the named unique index.
// SQLite does not name the index, so any unique or primary key failure counts there.
func isUniqueConflict(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey
	}
	return false
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func encodeJSON(value any, fallback string) (datatypes.JSON, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return datatypes.JSON([]byte(fallback)), nil
	}
	return datatypes.JSON(raw), nil
}

func decodeJSON(raw datatypes.JSON, target any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
