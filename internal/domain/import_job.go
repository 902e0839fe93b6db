package domain

import (
	"time"
	"unicode/utf8"
)

// ImportJobType is the category of a bulk import.
type ImportJobType string

const (
	ImportPerson   ImportJobType = "PERSON"
	ImportLocation ImportJobType = "LOCATION"
)

// Valid reports whether t is a known job type.
func (t ImportJobType) Valid() bool {
	return t == ImportPerson || t == ImportLocation
}

// ImportStatus is the lifecycle state of an import job.
type ImportStatus string

const (
	ImportInProgress ImportStatus = "IN_PROGRESS"
	ImportSuccess    ImportStatus = "SUCCESS"
	ImportFailed     ImportStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s ImportStatus) Terminal() bool {
	return s == ImportSuccess || s == ImportFailed
}

// Column widths of import_job, in characters.
const (
	ImportErrorMessageMax = 1000
	UsernameMax           = 255
	FileNameMax           = 255
)

// ImportJob is one bulk-import attempt. Only the final object key is ever retained.
type ImportJob struct {
	ID            int64         `json:"id" db:"id"`
	Username      string        `json:"username" db:"username"`
	FileName      string        `json:"fileName" db:"file_name"`
	Type          ImportJobType `json:"type" db:"job_type"`
	Status        ImportStatus  `json:"status" db:"status"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty" db:"finished_at"`
	AddedCount    *int          `json:"addedCount,omitempty" db:"added_count"`
	ErrorMessage  *string       `json:"errorMessage,omitempty" db:"error_message"`
	FileObjectKey *string       `json:"fileObjectKey,omitempty" db:"file_object_key"`
}

// TruncateMessage bounds msg to ImportErrorMessageMax characters.
func TruncateMessage(msg string) string { return truncateRunes(msg, ImportErrorMessageMax) }

// TruncateUsername bounds a caller name to UsernameMax characters.
func TruncateUsername(name string) string { return truncateRunes(name, UsernameMax) }

// TruncateFileName bounds an upload name to FileNameMax characters.
func TruncateFileName(name string) string { return truncateRunes(name, FileNameMax) }

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Role is the caller's privilege level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Identity is the caller resolved from request headers.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the identity carries the elevated role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// DemoIdentity is used when no identity headers are present.
var DemoIdentity = Identity{Username: "demo", Role: RoleUser}
