package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencoe/exam-paper-api/internal/crypto"
	"github.com/opencoe/exam-paper-api/internal/models"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
	"github.com/opencoe/exam-paper-api/pkg/jobs"
)

type mockPaperStore struct {
	created      *models.FinalizedPaper
	createErr    error
	ledgerStatus models.LedgerStatus
	ledgerTxHash *string
	ledgerID     *int64
}

func (m *mockPaperStore) CreateWithFinalization(ctx context.Context, paper *models.FinalizedPaper) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = paper
	return nil
}

func (m *mockPaperStore) SetLedgerRecord(ctx context.Context, id string, status models.LedgerStatus, txHash *string, ledgerPaperID *int64) error {
	m.ledgerStatus = status
	m.ledgerTxHash = txHash
	m.ledgerID = ledgerPaperID
	return nil
}

type mockContentStore struct {
	objects map[string][]byte
	copied  map[string]string
	putErr  error
	getErr  error
	corrupt bool
}

func newMockContentStore() *mockContentStore {
	return &mockContentStore{objects: map[string][]byte{}, copied: map[string]string{}}
}

func (m *mockContentStore) Put(ctx context.Context, data []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	id := fmt.Sprintf("Qm%d", len(m.objects)+1)
	m.objects[id] = data
	return id, nil
}

func (m *mockContentStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data := m.objects[contentID]
	if m.corrupt {
		data = append([]byte("x"), data...)
	}
	return data, nil
}

func (m *mockContentStore) Copy(ctx context.Context, contentID, name string) error {
	m.copied[contentID] = name
	return nil
}

type mockUploadRecorder struct {
	txHash   string
	ledgerID int64
	err      error
	calls    int
}

func (m *mockUploadRecorder) RecordUpload(ctx context.Context, contentID, filename, setterID string) (string, int64, error) {
	m.calls++
	if m.err != nil {
		return "", 0, m.err
	}
	return m.txHash, m.ledgerID, nil
}

type mockProfiles struct {
	profile *models.TeacherProfile
}

func (m *mockProfiles) GetProfile(ctx context.Context, username string) (*models.TeacherProfile, error) {
	return m.profile, nil
}

type mockCleanup struct {
	tasks []jobs.Task
}

func (m *mockCleanup) Enqueue(task jobs.Task) error {
	m.tasks = append(m.tasks, task)
	return nil
}

type finalizeFixture struct {
	svc       *FinalizeService
	requests  *mockRequestStore
	papers    *mockPaperStore
	store     *mockContentStore
	recorder  *mockUploadRecorder
	staging   *mockStorage
	release   *mockStorage
	cleanup   *mockCleanup
	plaintext []byte
}

// newFinalizeFixture stages a request exactly the way an upload leaves it:
// ciphertext and private key on disk, wrapped fields on the row.
func newFinalizeFixture(t *testing.T) *finalizeFixture {
	t.Helper()

	cipher := crypto.NewDocumentCipher()
	wrapper := crypto.NewKeyWrapper()
	plaintext := []byte("final question paper")

	key, ciphertext, err := cipher.Encrypt(plaintext)
	require.NoError(t, err)

	encryptedName := "cs101.pdf.encrypted"
	fields, privateKeyPEM, err := wrapper.Wrap(encryptedName, key, "T-17")
	require.NoError(t, err)

	staging := newMockStorage()
	staging.files[encryptedName] = ciphertext
	keyName := "T-17_private_key.pem"
	staging.files[keyName] = privateKeyPEM

	record := &models.Request{
		ID:               "r1",
		SetterID:         "setter1",
		SubjectCode:      "CS101",
		Status:           models.RequestPendingFinalization,
		WrappedContentID: fields.WrappedContentID,
		WrappedKey:       fields.WrappedKey,
		WrappedSetterID:  fields.WrappedSetterID,
		EncryptedPath:    &encryptedName,
		PrivateKeyPath:   &keyName,
	}

	fx := &finalizeFixture{
		requests:  &mockRequestStore{record: record},
		papers:    &mockPaperStore{},
		store:     newMockContentStore(),
		recorder:  &mockUploadRecorder{txHash: "0xabc", ledgerID: 7},
		staging:   staging,
		release:   newMockStorage(),
		cleanup:   &mockCleanup{},
		plaintext: plaintext,
	}
	fx.svc = NewFinalizeService(fx.requests, fx.papers,
		&mockProfiles{profile: &models.TeacherProfile{Course: "BTech", Semester: "6", Branch: "CSE", Subject: "Computer Science"}},
		fx.store, fx.recorder, fx.staging, fx.release, wrapper, cipher, fx.cleanup, zap.NewNop())
	return fx
}

func TestFinalizeServicePublishesPaper(t *testing.T) {
	fx := newFinalizeFixture(t)

	paper, err := fx.svc.Finalize(context.Background(), "r1", coeClaims())
	require.NoError(t, err)

	assert.Equal(t, "r1", paper.RequestID)
	assert.Equal(t, "CS101", paper.SubjectCode)
	assert.Equal(t, "CSE", paper.Branch)
	assert.Equal(t, models.LedgerRecorded, paper.LedgerStatus)
	require.NotNil(t, paper.LedgerPaperID)
	assert.EqualValues(t, 7, *paper.LedgerPaperID)

	released, err := fx.release.Read("CS101.pdf")
	require.NoError(t, err)
	assert.Equal(t, fx.plaintext, released)

	require.NotNil(t, fx.papers.created)
	assert.Equal(t, paper.ContentID, fx.papers.created.ContentID)
	assert.Equal(t, models.LedgerRecorded, fx.papers.ledgerStatus)

	require.Len(t, fx.cleanup.tasks, 1)
	assert.Equal(t, []string{"cs101.pdf.encrypted"}, fx.cleanup.tasks[0].Paths)
}

func TestFinalizeServiceRequiresCOE(t *testing.T) {
	fx := newFinalizeFixture(t)

	_, err := fx.svc.Finalize(context.Background(), "r1", setterClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestFinalizeServiceRejectsFinalizedRequest(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.requests.record.Status = models.RequestFinalized

	_, err := fx.svc.Finalize(context.Background(), "r1", coeClaims())
	require.ErrorIs(t, err, appErrors.ErrFinalized)
}

func TestFinalizeServiceLostRaceLeavesOnePaper(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.papers.createErr = sql.ErrNoRows

	_, err := fx.svc.Finalize(context.Background(), "r1", coeClaims())
	require.ErrorIs(t, err, appErrors.ErrFinalized)

	assert.Zero(t, fx.recorder.calls)
	assert.Empty(t, fx.release.files)
	assert.Empty(t, fx.cleanup.tasks)
}

func TestFinalizeServiceLedgerFailureIsNonFatal(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.recorder.err = appErrors.ErrLedgerRecord

	paper, err := fx.svc.Finalize(context.Background(), "r1", coeClaims())
	require.NoError(t, err)

	assert.Equal(t, models.LedgerRecordFailed, paper.LedgerStatus)
	assert.Nil(t, paper.UploadTxHash)
	assert.Equal(t, models.LedgerRecordFailed, fx.papers.ledgerStatus)
	require.Len(t, fx.cleanup.tasks, 1)
}

func TestFinalizeServiceDetectsCorruptedPublish(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.store.corrupt = true

	_, err := fx.svc.Finalize(context.Background(), "r1", coeClaims())
	require.ErrorIs(t, err, appErrors.ErrIntegrity)
	assert.Nil(t, fx.papers.created)
}

func TestFinalizeServiceDetectsTamperedCiphertext(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.staging.files["cs101.pdf.encrypted"][10] ^= 0xff

	_, err := fx.svc.Finalize(context.Background(), "r1", coeClaims())
	require.ErrorIs(t, err, appErrors.ErrIntegrity)
	assert.Nil(t, fx.papers.created)
}

func TestFinalizeServiceRejectsRequestWithoutUpload(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.requests.record.Status = models.RequestAccepted
	fx.requests.record.EncryptedPath = nil

	_, err := fx.svc.Finalize(context.Background(), "r1", coeClaims())
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
