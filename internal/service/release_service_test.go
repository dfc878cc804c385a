package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencoe/exam-paper-api/internal/models"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
)

type mockReleaseStore struct {
	paper      *models.FinalizedPaperWithExam
	claimErr   error
	claimed    bool
	released   bool
	downloadTx string
}

func (m *mockReleaseStore) ListWithExamTime(ctx context.Context) ([]models.FinalizedPaperWithExam, error) {
	if m.paper == nil {
		return nil, nil
	}
	return []models.FinalizedPaperWithExam{*m.paper}, nil
}

func (m *mockReleaseStore) GetWithExamTime(ctx context.Context, id string) (*models.FinalizedPaperWithExam, error) {
	if m.paper == nil {
		return nil, sql.ErrNoRows
	}
	return m.paper, nil
}

func (m *mockReleaseStore) ClaimDownload(ctx context.Context, id string) error {
	if m.claimErr != nil {
		return m.claimErr
	}
	m.claimed = true
	return nil
}

func (m *mockReleaseStore) ReleaseDownloadClaim(ctx context.Context, id string) error {
	m.released = true
	return nil
}

func (m *mockReleaseStore) SetDownloadRecord(ctx context.Context, id, txHash string) error {
	m.downloadTx = txHash
	return nil
}

type mockDownloadRecorder struct {
	txHash string
	err    error
	calls  int
}

func (m *mockDownloadRecorder) RecordDownload(ctx context.Context, ledgerPaperID int64, filename, requesterID string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.txHash, nil
}

func superClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u3", Username: "super1", Role: models.RoleSuperintendent}
}

func finalizedPaper(examTime time.Time) *models.FinalizedPaperWithExam {
	ledgerID := int64(7)
	return &models.FinalizedPaperWithExam{
		FinalizedPaper: models.FinalizedPaper{
			ID:            "p1",
			RequestID:     "r1",
			SubjectCode:   "CS101",
			PaperPath:     "CS101.pdf",
			ContentID:     "Qm1",
			LedgerPaperID: &ledgerID,
			LedgerStatus:  models.LedgerRecorded,
		},
		ExamTime: examTime,
	}
}

func newReleaseFixture(examTime time.Time) (*ReleaseService, *mockReleaseStore, *mockStorage) {
	store := &mockReleaseStore{paper: finalizedPaper(examTime)}
	release := newMockStorage()
	release.files["CS101.pdf"] = []byte("plain paper")
	svc := NewReleaseService(store, &mockDownloadRecorder{txHash: "0xdef"}, release, 20*time.Minute, zap.NewNop())
	return svc, store, release
}

func TestReleaseServiceListReportsEligibility(t *testing.T) {
	now := time.Now()

	svc, _, _ := newReleaseFixture(now.Add(25 * time.Minute))
	svc.now = func() time.Time { return now }
	papers, err := svc.ListPapers(context.Background(), superClaims())
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.False(t, papers[0].Downloadable)

	svc, _, _ = newReleaseFixture(now.Add(15 * time.Minute))
	svc.now = func() time.Time { return now }
	papers, err = svc.ListPapers(context.Background(), superClaims())
	require.NoError(t, err)
	assert.True(t, papers[0].Downloadable)
}

func TestReleaseServiceDownloadInsideWindow(t *testing.T) {
	now := time.Now()
	svc, store, _ := newReleaseFixture(now.Add(15 * time.Minute))
	svc.now = func() time.Time { return now }

	download, err := svc.Download(context.Background(), "p1", superClaims())
	require.NoError(t, err)
	assert.Equal(t, "CS101.pdf", download.Filename)
	assert.Equal(t, []byte("plain paper"), download.Content)
	assert.True(t, store.claimed)
	assert.Equal(t, "0xdef", store.downloadTx)
}

func TestReleaseServiceDownloadBeforeWindow(t *testing.T) {
	now := time.Now()
	svc, store, _ := newReleaseFixture(now.Add(25 * time.Minute))
	svc.now = func() time.Time { return now }

	_, err := svc.Download(context.Background(), "p1", superClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.False(t, store.claimed)
}

func TestReleaseServiceSecondDownloadRejected(t *testing.T) {
	now := time.Now()
	svc, store, _ := newReleaseFixture(now.Add(15 * time.Minute))
	svc.now = func() time.Time { return now }
	store.paper.Downloaded = true

	_, err := svc.Download(context.Background(), "p1", superClaims())
	require.ErrorIs(t, err, appErrors.ErrAlreadyDownloaded)
}

func TestReleaseServiceLostClaimRaceRejected(t *testing.T) {
	now := time.Now()
	svc, store, _ := newReleaseFixture(now.Add(15 * time.Minute))
	svc.now = func() time.Time { return now }
	store.claimErr = sql.ErrNoRows

	_, err := svc.Download(context.Background(), "p1", superClaims())
	require.ErrorIs(t, err, appErrors.ErrAlreadyDownloaded)
}

func TestReleaseServiceLedgerFailureReleasesClaim(t *testing.T) {
	now := time.Now()
	store := &mockReleaseStore{paper: finalizedPaper(now.Add(15 * time.Minute))}
	release := newMockStorage()
	release.files["CS101.pdf"] = []byte("plain paper")
	svc := NewReleaseService(store, &mockDownloadRecorder{err: appErrors.ErrLedgerRecord}, release, 20*time.Minute, zap.NewNop())
	svc.now = func() time.Time { return now }

	_, err := svc.Download(context.Background(), "p1", superClaims())
	require.ErrorIs(t, err, appErrors.ErrLedgerRecord)
	assert.True(t, store.released)
}

func TestReleaseServiceReadFailureReleasesClaim(t *testing.T) {
	now := time.Now()
	store := &mockReleaseStore{paper: finalizedPaper(now.Add(15 * time.Minute))}
	recorder := &mockDownloadRecorder{txHash: "0xdef"}
	svc := NewReleaseService(store, recorder, newMockStorage(), 20*time.Minute, zap.NewNop())
	svc.now = func() time.Time { return now }

	_, err := svc.Download(context.Background(), "p1", superClaims())
	require.Error(t, err)
	assert.True(t, store.released)
	assert.Zero(t, recorder.calls)
	assert.Empty(t, store.downloadTx)
}

func TestReleaseServiceRequiresSuperintendent(t *testing.T) {
	svc, _, _ := newReleaseFixture(time.Now())

	_, err := svc.Download(context.Background(), "p1", coeClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = svc.ListPapers(context.Background(), setterClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}
