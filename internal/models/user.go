package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleTeacher        UserRole = "TEACHER"
	RoleCOE            UserRole = "COE"
	RoleSuperintendent UserRole = "SUPERINTENDENT"
)

// User represents an application user stored in the users table. Teachers
// carry the profile fields that get snapshotted onto a finalized paper.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	TeacherID    string     `db:"teacher_id" json:"teacher_id,omitempty"`
	Course       string     `db:"course" json:"course,omitempty"`
	Semester     string     `db:"semester" json:"semester,omitempty"`
	Branch       string     `db:"branch" json:"branch,omitempty"`
	Subject      string     `db:"subject" json:"subject,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// TeacherProfile is the snapshot taken from a setter at finalization time.
type TeacherProfile struct {
	Course   string `db:"course" json:"course"`
	Semester string `db:"semester" json:"semester"`
	Branch   string `db:"branch" json:"branch"`
	Subject  string `db:"subject" json:"subject"`
}

// SetterFilter selects eligible setters for a new paper assignment.
type SetterFilter struct {
	Course   string
	Semester string
	Branch   string
	Subject  string
}
