package models

import "time"

// LedgerStatus tracks whether the upload event made it onto the ledger.
type LedgerStatus string

const (
	LedgerUnrecorded   LedgerStatus = "Unrecorded"
	LedgerRecorded     LedgerStatus = "Recorded"
	LedgerRecordFailed LedgerStatus = "RecordFailed"
)

// FinalizedPaper is the published, decrypted artifact. The profile columns
// are a snapshot of the setter taken at finalization time, not a live
// reference. RequestID links back to the originating request so the release
// gate never has to re-derive it from the subject code.
type FinalizedPaper struct {
	ID          string `db:"id" json:"id"`
	RequestID   string `db:"request_id" json:"request_id"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	Course      string `db:"course" json:"course"`
	Semester    string `db:"semester" json:"semester"`
	Branch      string `db:"branch" json:"branch"`
	Subject     string `db:"subject" json:"subject"`

	PaperPath string `db:"paper_path" json:"-"`

	// ContentID is the content-store identifier of the published ciphertext.
	// LedgerPaperID is assigned by the ledger contract; the two are
	// correlated but never assumed equal to the local id.
	ContentID     string `db:"content_id" json:"content_id"`
	LedgerPaperID *int64 `db:"ledger_paper_id" json:"ledger_paper_id,omitempty"`

	LedgerStatus   LedgerStatus `db:"ledger_status" json:"ledger_status"`
	UploadTxHash   *string      `db:"upload_tx_hash" json:"upload_tx_hash,omitempty"`
	DownloadTxHash *string      `db:"download_tx_hash" json:"download_tx_hash,omitempty"`

	// Downloaded flips false to true exactly once and is never reset.
	Downloaded bool `db:"downloaded" json:"downloaded"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FinalizedPaperWithExam joins a paper to the exam time of its originating
// request.
type FinalizedPaperWithExam struct {
	FinalizedPaper
	ExamTime time.Time `db:"exam_time"`
}

// PaperRelease annotates a finalized paper with its release eligibility for
// the superintendent dashboard.
type PaperRelease struct {
	Paper        FinalizedPaper `json:"paper"`
	ExamTime     time.Time      `json:"exam_time"`
	Downloadable bool           `json:"downloadable"`
	TimeToExam   time.Duration  `json:"time_to_exam_ms"`
}
