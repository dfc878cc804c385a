package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opencoe/exam-paper-api/internal/models"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
)

type paperReleaseStore interface {
	ListWithExamTime(ctx context.Context) ([]models.FinalizedPaperWithExam, error)
	GetWithExamTime(ctx context.Context, id string) (*models.FinalizedPaperWithExam, error)
	ClaimDownload(ctx context.Context, id string) error
	ReleaseDownloadClaim(ctx context.Context, id string) error
	SetDownloadRecord(ctx context.Context, id, txHash string) error
}

type downloadRecorder interface {
	RecordDownload(ctx context.Context, ledgerPaperID int64, filename, requesterID string) (string, error)
}

type paperReader interface {
	Read(filename string) ([]byte, error)
}

// PaperDownload is a released plaintext paper ready for streaming.
type PaperDownload struct {
	Filename string
	Content  []byte
}

// ReleaseService gates finalized papers behind the pre-exam release window
// and enforces the single-download rule. Superintendent only.
type ReleaseService struct {
	papers   paperReleaseStore
	recorder downloadRecorder
	release  paperReader
	window   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReleaseService constructs the service. window is how long before the
// exam a paper becomes downloadable.
func NewReleaseService(papers paperReleaseStore, recorder downloadRecorder, release paperReader, window time.Duration, logger *zap.Logger) *ReleaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReleaseService{
		papers:   papers,
		recorder: recorder,
		release:  release,
		window:   window,
		logger:   logger,
		now:      time.Now,
	}
}

// ListPapers returns all finalized papers annotated with their release
// eligibility at the time of the call.
func (s *ReleaseService) ListPapers(ctx context.Context, actor *models.JWTClaims) ([]models.PaperRelease, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperintendent {
		return nil, appErrors.ErrForbidden
	}

	rows, err := s.papers.ListWithExamTime(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list papers")
	}

	now := s.now()
	releases := make([]models.PaperRelease, 0, len(rows))
	for _, row := range rows {
		releases = append(releases, models.PaperRelease{
			Paper:        row.FinalizedPaper,
			ExamTime:     row.ExamTime,
			Downloadable: s.isDownloadable(row, now),
			TimeToExam:   row.ExamTime.Sub(now),
		})
	}
	return releases, nil
}

// Download claims the one permitted download of a paper, records it on the
// ledger and returns the plaintext. If the ledger record fails the claim is
// released so the download can be retried.
func (s *ReleaseService) Download(ctx context.Context, paperID string, actor *models.JWTClaims) (*PaperDownload, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperintendent {
		return nil, appErrors.ErrForbidden
	}

	paper, err := s.papers.GetWithExamTime(ctx, paperID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "paper not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch paper")
	}

	now := s.now()
	if paper.Downloaded {
		return nil, appErrors.ErrAlreadyDownloaded
	}
	if paper.ExamTime.Sub(now) > s.window {
		return nil, appErrors.Clone(appErrors.ErrForbidden,
			fmt.Sprintf("paper is released %s before the exam", s.window))
	}

	if err := s.papers.ClaimDownload(ctx, paperID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyDownloaded
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim download")
	}

	filename := fmt.Sprintf("%s.pdf", paper.SubjectCode)

	// plaintext must be in hand before the ledger record is committed
	content, err := s.release.Read(paper.PaperPath)
	if err != nil {
		s.releaseClaim(ctx, paperID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read finalized paper")
	}

	var ledgerID int64
	if paper.LedgerPaperID != nil {
		ledgerID = *paper.LedgerPaperID
	}
	txHash, err := s.recorder.RecordDownload(ctx, ledgerID, filename, actor.Username)
	if err != nil {
		s.releaseClaim(ctx, paperID)
		return nil, err
	}
	if err := s.papers.SetDownloadRecord(ctx, paperID, txHash); err != nil {
		s.logger.Error("failed to persist download record",
			zap.String("paper_id", paperID),
			zap.Error(err),
		)
	}

	s.logger.Info("paper released",
		zap.String("paper_id", paperID),
		zap.String("requested_by", actor.Username),
	)
	return &PaperDownload{Filename: filename, Content: content}, nil
}

func (s *ReleaseService) releaseClaim(ctx context.Context, paperID string) {
	if err := s.papers.ReleaseDownloadClaim(ctx, paperID); err != nil {
		s.logger.Error("failed to release download claim",
			zap.String("paper_id", paperID),
			zap.Error(err),
		)
	}
}

func (s *ReleaseService) isDownloadable(paper models.FinalizedPaperWithExam, now time.Time) bool {
	return !paper.Downloaded && paper.ExamTime.Sub(now) <= s.window
}
