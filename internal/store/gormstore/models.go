package gormstore

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User mirrors the users table. ExodeCoursePoints is written by the external sync only.
type User struct {
	ID                string  `gorm:"primaryKey"`
	Name              string  `gorm:"not null;index:idx_users_name_id,priority:1"`
	Email             string  `gorm:"not null;default:''"`
	AvatarURL         string  `gorm:"not null;default:''"`
	Role              string  `gorm:"not null;index"`
	RegionID          *string `gorm:"index"`
	ExodeCoursePoints int64   `gorm:"not null;default:0"`
	CreatedAt         time.Time
}

func (User) TableName() string { return "users" }

// Region mirrors the regions table.
type Region struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"not null"`
}

func (Region) TableName() string { return "regions" }

// Club mirrors the clubs table.
type Club struct {
	ID           string  `gorm:"primaryKey"`
	Name         string  `gorm:"not null"`
	RegionID     string  `gorm:"not null;index"`
	AmbassadorID *string `gorm:"index"`
}

func (Club) TableName() string { return "clubs" }

// PointEntry mirrors the append-only point_entries table. Rows with a NULL
// reference_id never collide on uniq_point_reference.
type PointEntry struct {
	ID            string    `gorm:"primaryKey"`
	UserID        string    `gorm:"not null;index:uniq_point_reference,unique,priority:1;index:idx_point_entries_user_created,priority:1"`
	Amount        int64     `gorm:"not null"`
	Reason        string    `gorm:"not null"`
	ReferenceType string    `gorm:"not null;index:uniq_point_reference,unique,priority:2"`
	ReferenceID   *string   `gorm:"index:uniq_point_reference,unique,priority:3"`
	CreatedAt     time.Time `gorm:"not null;index:idx_point_entries_user_created,priority:2"`
}

func (PointEntry) TableName() string { return "point_entries" }

// Membership mirrors the memberships table. A user holds at most one pending
// or approved membership per club.
type Membership struct {
	ID          string     `gorm:"primaryKey"`
	ClubID      string     `gorm:"not null;index:uniq_live_membership,unique,priority:1,where:status <> 'rejected' AND status <> 'removed'"`
	UserID      string     `gorm:"not null;index:uniq_live_membership,unique,priority:2;index"`
	Status      string     `gorm:"not null;index"`
	EvidenceRef string     `gorm:"not null;default:''"`
	Reason      string     `gorm:"not null;default:''"`
	ReviewerID  *string    `gorm:""`
	RequestedAt time.Time  `gorm:"not null"`
	ReviewedAt  *time.Time `gorm:"index"`
}

func (Membership) TableName() string { return "memberships" }

// Event mirrors the events table.
type Event struct {
	ID             string         `gorm:"primaryKey"`
	ClubID         string         `gorm:"not null;index"`
	OrganizerID    string         `gorm:"not null;index"`
	Title          string         `gorm:"not null"`
	Description    string         `gorm:"not null;default:''"`
	StartsAt       time.Time      `gorm:"not null;index"`
	PointsValue    int64          `gorm:"not null;default:0"`
	Status         string         `gorm:"not null;index"`
	AttendeesCount *int           `gorm:""`
	PhotoRefs      datatypes.JSON `gorm:"not null"`
	AttendeeIDs    datatypes.JSON `gorm:"not null"`
	Reason         string         `gorm:"not null;default:''"`
	ReviewerID     *string        `gorm:""`
	CreatedAt      time.Time      `gorm:"not null"`
	CompletedAt    *time.Time     `gorm:""`
}

func (Event) TableName() string { return "events" }

// Task mirrors the tasks table.
type Task struct {
	ID             string    `gorm:"primaryKey"`
	Title          string    `gorm:"not null"`
	Description    string    `gorm:"not null;default:''"`
	Points         int64     `gorm:"not null"`
	MaxCompletions int       `gorm:"not null;default:1"`
	CreatedBy      string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (Task) TableName() string { return "tasks" }

// TaskCompletion mirrors the task_completions table. A user holds at most one
// pending completion per task.
type TaskCompletion struct {
	ID          string     `gorm:"primaryKey"`
	TaskID      string     `gorm:"not null;index:uniq_pending_completion,unique,priority:1,where:status = 'pending';index:idx_task_completions_task_user,priority:1"`
	UserID      string     `gorm:"not null;index:uniq_pending_completion,unique,priority:2;index:idx_task_completions_task_user,priority:2"`
	Status      string     `gorm:"not null"`
	EvidenceRef string     `gorm:"not null;default:''"`
	Reason      string     `gorm:"not null;default:''"`
	ReviewerID  *string    `gorm:""`
	SubmittedAt time.Time  `gorm:"not null"`
	ReviewedAt  *time.Time `gorm:""`
}

func (TaskCompletion) TableName() string { return "task_completions" }

// Report mirrors the reports table. The *Data columns and summary scalars are
// written once on insert.
type Report struct {
	ID                    string         `gorm:"primaryKey"`
	AuthorID              string         `gorm:"not null;index:uniq_report_period,unique,priority:1"`
	Month                 int            `gorm:"not null;index:uniq_report_period,unique,priority:3"`
	Year                  int            `gorm:"not null;index:uniq_report_period,unique,priority:2"`
	Status                string         `gorm:"not null;index"`
	Highlights            string         `gorm:"not null;default:''"`
	Challenges            string         `gorm:"not null;default:''"`
	NextSteps             string         `gorm:"not null;default:''"`
	Reason                string         `gorm:"not null;default:''"`
	ReviewerID            *string        `gorm:""`
	PeriodStart           time.Time      `gorm:"not null"`
	PeriodEnd             time.Time      `gorm:"not null"`
	SessionsData          datatypes.JSON `gorm:"not null"`
	EventsData            datatypes.JSON `gorm:"not null"`
	MembersData           datatypes.JSON `gorm:"not null"`
	PointsData            datatypes.JSON `gorm:"not null"`
	SessionsCount         int            `gorm:"not null"`
	EventsCount           int            `gorm:"not null"`
	NewMembersCount       int            `gorm:"not null"`
	PointsEarned          int64          `gorm:"not null"`
	TotalSessionAttendees int            `gorm:"not null"`
	TotalEventAttendees   int            `gorm:"not null"`
	AverageAttendanceRate *float64       `gorm:""`
	CreatedAt             time.Time      `gorm:"not null"`
	SubmittedAt           *time.Time     `gorm:""`
	ReviewedAt            *time.Time     `gorm:""`
}

func (Report) TableName() string { return "reports" }

// Session mirrors the sessions table.
type Session struct {
	ID             string     `gorm:"primaryKey"`
	ClubID         string     `gorm:"not null;index:idx_sessions_club_scheduled,priority:1"`
	HostID         string     `gorm:"not null"`
	Title          string     `gorm:"not null"`
	ScheduledAt    time.Time  `gorm:"not null;index:idx_sessions_club_scheduled,priority:2"`
	PointsValue    int64      `gorm:"not null;default:0"`
	Status         string     `gorm:"not null"`
	PresentCount   int        `gorm:"not null;default:0"`
	TotalCount     int        `gorm:"not null;default:0"`
	AttendanceRate *float64   `gorm:""`
	Reason         string     `gorm:"not null;default:''"`
	ConfirmedAt    *time.Time `gorm:""`
	CreatedAt      time.Time  `gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

// SessionAttendance mirrors the session_attendances table.
type SessionAttendance struct {
	SessionID  string    `gorm:"primaryKey"`
	UserID     string    `gorm:"primaryKey"`
	Present    bool      `gorm:"not null"`
	RecordedAt time.Time `gorm:"not null"`
}

func (SessionAttendance) TableName() string { return "session_attendances" }

// ActivityLog mirrors the append-only activity_log table.
type ActivityLog struct {
	ID         string         `gorm:"primaryKey"`
	EntityType string         `gorm:"not null;index:idx_activity_entity,priority:1"`
	EntityID   string         `gorm:"not null;index:idx_activity_entity,priority:2"`
	Action     string         `gorm:"not null"`
	ActorID    string         `gorm:"not null"`
	Details    datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (ActivityLog) TableName() string { return "activity_log" }

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&Region{},
		&User{},
		&Club{},
		&PointEntry{},
		&Membership{},
		&Event{},
		&Task{},
		&TaskCompletion{},
		&Report{},
		&Session{},
		&SessionAttendance{},
		&ActivityLog{},
	}
}

// AutoMigrate creates or updates every table and index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
