package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencoe/exam-paper-api/internal/crypto"
	"github.com/opencoe/exam-paper-api/internal/models"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
	"github.com/opencoe/exam-paper-api/pkg/jobs"
)

type requestReader interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
}

type paperFinalizer interface {
	CreateWithFinalization(ctx context.Context, paper *models.FinalizedPaper) error
	SetLedgerRecord(ctx context.Context, id string, status models.LedgerStatus, txHash *string, ledgerPaperID *int64) error
}

type contentStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, contentID string) ([]byte, error)
	Copy(ctx context.Context, contentID, name string) error
}

type uploadRecorder interface {
	RecordUpload(ctx context.Context, contentID, filename, setterID string) (string, int64, error)
}

type profileReader interface {
	GetProfile(ctx context.Context, username string) (*models.TeacherProfile, error)
}

type cleanupQueue interface {
	Enqueue(task jobs.Task) error
}

// FinalizeService publishes an uploaded paper: ciphertext to the content
// store, plaintext to the release area, then the DB flip and the ledger
// record. A failure before the DB flip leaves the request in
// PendingFinalization so finalization can be retried.
type FinalizeService struct {
	requests requestReader
	papers   paperFinalizer
	profiles profileReader
	store    contentStore
	recorder uploadRecorder
	staging  artifactStorage
	release  artifactStorage
	wrapper  keyWrapper
	cipher   documentCipher
	cleanup  cleanupQueue
	logger   *zap.Logger
}

// NewFinalizeService constructs the orchestrator.
func NewFinalizeService(requests requestReader, papers paperFinalizer, profiles profileReader, store contentStore, recorder uploadRecorder, staging, release artifactStorage, wrapper keyWrapper, cipher documentCipher, cleanup cleanupQueue, logger *zap.Logger) *FinalizeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinalizeService{
		requests: requests,
		papers:   papers,
		profiles: profiles,
		store:    store,
		recorder: recorder,
		staging:  staging,
		release:  release,
		wrapper:  wrapper,
		cipher:   cipher,
		cleanup:  cleanup,
		logger:   logger,
	}
}

// Finalize runs the full publish pipeline for one request. COE only. Repeat
// calls for an already finalized request fail with a conflict and leave
// exactly one paper behind.
func (s *FinalizeService) Finalize(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.FinalizedPaper, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleCOE {
		return nil, appErrors.ErrForbidden
	}

	record, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch request")
	}
	if record.Status == models.RequestFinalized {
		return nil, appErrors.ErrFinalized
	}
	if record.Status != models.RequestPendingFinalization || record.EncryptedPath == nil || record.PrivateKeyPath == nil || !record.HasWrappedFields() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request has no paper awaiting finalization")
	}

	ciphertext, err := s.staging.Read(*record.EncryptedPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read staged paper")
	}

	contentID, err := s.store.Put(ctx, ciphertext)
	if err != nil {
		return nil, err
	}
	if err := s.store.Copy(ctx, contentID, fmt.Sprintf("%s.encrypted", record.SubjectCode)); err != nil {
		s.logger.Warn("content store copy failed",
			zap.String("request_id", record.ID),
			zap.Error(err),
		)
	}

	// read back through the gateway to prove the ciphertext is retrievable
	fetched, err := s.store.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(fetched, ciphertext) {
		return nil, appErrors.Clone(appErrors.ErrIntegrity, "published paper does not match the staged ciphertext")
	}

	privateKeyPEM, err := s.staging.Read(*record.PrivateKeyPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read key material")
	}

	key, wrappedRef, err := s.wrapper.Unwrap(&crypto.WrappedFields{
		WrappedContentID: record.WrappedContentID,
		WrappedKey:       record.WrappedKey,
		WrappedSetterID:  record.WrappedSetterID,
	}, privateKeyPEM)
	if err != nil {
		return nil, err
	}
	if wrappedRef != *record.EncryptedPath {
		return nil, appErrors.Clone(appErrors.ErrIntegrity, "wrapped reference does not match the staged paper")
	}

	plaintext, err := s.cipher.Decrypt(ciphertext, key)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetProfile(ctx, record.SetterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load setter profile")
	}

	paperName := fmt.Sprintf("%s.pdf", record.SubjectCode)
	paperPath, err := s.release.Save(paperName, plaintext)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store finalized paper")
	}

	paper := &models.FinalizedPaper{
		ID:          uuid.NewString(),
		RequestID:   record.ID,
		SubjectCode: record.SubjectCode,
		Course:      profile.Course,
		Semester:    profile.Semester,
		Branch:      profile.Branch,
		Subject:     profile.Subject,
		PaperPath:   paperPath,
		ContentID:   contentID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.papers.CreateWithFinalization(ctx, paper); err != nil {
		_ = s.release.Delete(paperName)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrFinalized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize request")
	}

	s.recordUpload(ctx, paper, record.SetterID)
	s.enqueueCleanup(record)

	s.logger.Info("paper finalized",
		zap.String("request_id", record.ID),
		zap.String("paper_id", paper.ID),
		zap.String("content_id", contentID),
	)
	return paper, nil
}

// recordUpload appends the upload event to the ledger. The paper is already
// committed, so a ledger failure only marks the paper RecordFailed.
func (s *FinalizeService) recordUpload(ctx context.Context, paper *models.FinalizedPaper, setterID string) {
	txHash, ledgerID, err := s.recorder.RecordUpload(ctx, paper.ContentID, fmt.Sprintf("%s.pdf", paper.SubjectCode), setterID)
	if err != nil {
		s.logger.Error("ledger upload record failed",
			zap.String("paper_id", paper.ID),
			zap.Error(err),
		)
		paper.LedgerStatus = models.LedgerRecordFailed
		if err := s.papers.SetLedgerRecord(ctx, paper.ID, models.LedgerRecordFailed, nil, nil); err != nil {
			s.logger.Error("failed to mark ledger status", zap.String("paper_id", paper.ID), zap.Error(err))
		}
		return
	}

	paper.LedgerStatus = models.LedgerRecorded
	paper.UploadTxHash = &txHash
	paper.LedgerPaperID = &ledgerID
	if err := s.papers.SetLedgerRecord(ctx, paper.ID, models.LedgerRecorded, &txHash, &ledgerID); err != nil {
		s.logger.Error("failed to persist ledger record", zap.String("paper_id", paper.ID), zap.Error(err))
	}
}

// enqueueCleanup schedules removal of the staged ciphertext now that the
// plaintext is published. The key file stays on disk for audit purposes.
func (s *FinalizeService) enqueueCleanup(record *models.Request) {
	if s.cleanup == nil || record.EncryptedPath == nil {
		return
	}
	task := jobs.Task{
		ID:    record.ID,
		Kind:  "purge-staged-ciphertext",
		Paths: []string{*record.EncryptedPath},
	}
	if err := s.cleanup.Enqueue(task); err != nil {
		s.logger.Warn("cleanup enqueue failed", zap.String("request_id", record.ID), zap.Error(err))
	}
}
