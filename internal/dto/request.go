package dto

import "time"

// CreateAssignmentRequest is the COE payload assigning a paper to a setter.
type CreateAssignmentRequest struct {
	SetterUsername string    `form:"setter" json:"setter" validate:"required"`
	Subject        string    `form:"subject" json:"subject" validate:"required"`
	PaperDeadline  time.Time `form:"paper_deadline" json:"paper_deadline" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
	ExamTime       time.Time `form:"exam_time" json:"exam_time" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
}

// EligibleSettersFilter selects candidate setters for an assignment.
type EligibleSettersFilter struct {
	Course   string `form:"course" json:"course" validate:"required"`
	Semester string `form:"semester" json:"semester" validate:"required"`
	Branch   string `form:"branch" json:"branch" validate:"required"`
	Subject  string `form:"subject" json:"subject" validate:"required"`
}
