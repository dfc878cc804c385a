package models

import "time"

// RequestStatus tracks a paper request through its lifecycle.
type RequestStatus string

const (
	RequestPending             RequestStatus = "Pending"
	RequestAccepted            RequestStatus = "Accepted"
	RequestPendingFinalization RequestStatus = "PendingFinalization"
	RequestFinalized           RequestStatus = "Finalized"
)

// Request is one paper-setting assignment. The wrapped fields and key path
// are populated when the setter uploads their paper; the encrypted path is
// cleared again once the paper is finalized.
type Request struct {
	ID          string        `db:"id" json:"id"`
	SetterID    string        `db:"setter_id" json:"setter_id"`
	SubjectCode string        `db:"subject_code" json:"subject_code"`
	Syllabus    string        `db:"syllabus_path" json:"syllabus"`
	QPattern    string        `db:"q_pattern_path" json:"q_pattern"`

	PaperDeadline time.Time `db:"paper_deadline" json:"paper_deadline"`
	ExamTime      time.Time `db:"exam_time" json:"exam_time"`

	Status RequestStatus `db:"status" json:"status"`

	WrappedContentID []byte  `db:"wrapped_content_id" json:"-"`
	WrappedKey       []byte  `db:"wrapped_key" json:"-"`
	WrappedSetterID  []byte  `db:"wrapped_setter_id" json:"-"`
	PrivateKeyPath   *string `db:"private_key_path" json:"-"`
	EncryptedPath    *string `db:"encrypted_path" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasWrappedFields reports whether upload side effects are fully persisted.
func (r *Request) HasWrappedFields() bool {
	return len(r.WrappedContentID) > 0 && len(r.WrappedKey) > 0 && len(r.WrappedSetterID) > 0
}

// RequestOverview is the COE dashboard row: setter name plus current status.
type RequestOverview struct {
	ID         string        `db:"id" json:"id"`
	SetterName string        `db:"setter_name" json:"setter_name"`
	Status     RequestStatus `db:"status" json:"status"`
}

// Subject maps a human-readable subject to its registered code.
type Subject struct {
	Code    string `db:"code" json:"code"`
	Subject string `db:"subject" json:"subject"`
}
