package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencoe/exam-paper-api/internal/crypto"
	"github.com/opencoe/exam-paper-api/internal/dto"
	"github.com/opencoe/exam-paper-api/internal/models"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	ListBySetter(ctx context.Context, setterID string, pending bool) ([]models.Request, error)
	Overview(ctx context.Context) ([]models.RequestOverview, error)
	Accept(ctx context.Context, id, setterID string, ts time.Time) error
	AttachUpload(ctx context.Context, req *models.Request) error
}

type subjectResolver interface {
	FindBySubject(ctx context.Context, subject string) (*models.Subject, error)
}

type setterLister interface {
	ListEligibleSetters(ctx context.Context, filter models.SetterFilter) ([]models.User, error)
}

type artifactStorage interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string) ([]byte, error)
	Delete(filename string) error
}

type documentCipher interface {
	Encrypt(plaintext []byte) (key, ciphertext []byte, err error)
	Decrypt(ciphertext, key []byte) ([]byte, error)
}

type keyWrapper interface {
	Wrap(contentID string, symmetricKey []byte, setterID string) (*crypto.WrappedFields, []byte, error)
	Unwrap(fields *crypto.WrappedFields, privateKeyPEM []byte) ([]byte, string, error)
}

// PaperUpload carries the setter's submitted document.
type PaperUpload struct {
	Filename string
	Content  []byte
}

// EligibleSetters bundles candidate setters with the resolved subject code.
type EligibleSetters struct {
	SubjectCode string        `json:"subject_code"`
	Setters     []models.User `json:"setters"`
}

// RequestService owns the paper-request lifecycle up to the point a request
// is ready for finalization.
type RequestService struct {
	requests requestStore
	subjects subjectResolver
	setters  setterLister
	staging  artifactStorage
	cipher   documentCipher
	wrapper  keyWrapper

	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRequestService constructs the service.
func NewRequestService(requests requestStore, subjects subjectResolver, setters setterLister, staging artifactStorage, cipher documentCipher, wrapper keyWrapper, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RequestService{
		requests:  requests,
		subjects:  subjects,
		setters:   setters,
		staging:   staging,
		cipher:    cipher,
		wrapper:   wrapper,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateAssignment registers a new Pending request for a setter. COE only.
func (s *RequestService) CreateAssignment(ctx context.Context, req dto.CreateAssignmentRequest, syllabus, qPattern PaperUpload, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleCOE {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	subject, err := s.subjects.FindBySubject(ctx, req.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject code not found for the given subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject code")
	}

	syllabusPath, err := s.saveAsset(subject.Code, "syllabus", syllabus)
	if err != nil {
		return nil, err
	}
	qPatternPath, err := s.saveAsset(subject.Code, "pattern", qPattern)
	if err != nil {
		return nil, err
	}

	record := &models.Request{
		SetterID:      req.SetterUsername,
		SubjectCode:   subject.Code,
		Syllabus:      syllabusPath,
		QPattern:      qPatternPath,
		PaperDeadline: req.PaperDeadline,
		ExamTime:      req.ExamTime,
	}
	if err := s.requests.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	return record, nil
}

// EligibleSetters lists teachers available for a new assignment. COE only.
func (s *RequestService) EligibleSetters(ctx context.Context, filter dto.EligibleSettersFilter, actor *models.JWTClaims) (*EligibleSetters, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleCOE {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid setter filter")
	}

	subject, err := s.subjects.FindBySubject(ctx, filter.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject code not found for the given subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject code")
	}

	users, err := s.setters.ListEligibleSetters(ctx, models.SetterFilter{
		Course:   filter.Course,
		Semester: filter.Semester,
		Branch:   filter.Branch,
		Subject:  filter.Subject,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list setters")
	}
	return &EligibleSetters{SubjectCode: subject.Code, Setters: users}, nil
}

// ListForSetter returns the calling setter's requests, split by pending flag.
func (s *RequestService) ListForSetter(ctx context.Context, pending bool, actor *models.JWTClaims) ([]models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.requests.ListBySetter(ctx, actor.Username, pending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// Overview returns all requests with setter names. COE only.
func (s *RequestService) Overview(ctx context.Context, actor *models.JWTClaims) ([]models.RequestOverview, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleCOE {
		return nil, appErrors.ErrForbidden
	}
	rows, err := s.requests.Overview(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overview")
	}
	return rows, nil
}

// Accept moves the setter's own Pending request to Accepted. Of any
// concurrent accepts at most one wins; the rest see a conflict.
func (s *RequestService) Accept(ctx context.Context, requestID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTeacher {
		return appErrors.ErrForbidden
	}

	err := s.requests.Accept(ctx, requestID, actor.Username, s.now().UTC())
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept request")
	}

	// no Pending row matched; distinguish why for the caller
	record, getErr := s.requests.GetByID(ctx, requestID)
	if getErr != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	if record.SetterID != actor.Username {
		return appErrors.ErrForbidden
	}
	return appErrors.Clone(appErrors.ErrConflict, "request is no longer pending")
}

// UploadPaper encrypts and stages the setter's document, wraps the key
// material under a fresh keypair and moves the request to
// PendingFinalization. Uploads after the deadline are rejected without any
// state change.
func (s *RequestService) UploadPaper(ctx context.Context, requestID string, upload PaperUpload, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.ErrForbidden
	}
	if len(upload.Content) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no paper file provided")
	}

	record, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch request")
	}
	if record.SetterID != actor.Username {
		return nil, appErrors.ErrForbidden
	}
	if record.Status != models.RequestAccepted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request is not accepted")
	}
	if s.now().After(record.PaperDeadline) {
		return nil, appErrors.ErrDeadlineExceeded
	}

	key, ciphertext, err := s.cipher.Encrypt(upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encrypt paper")
	}

	encryptedName := fmt.Sprintf("%s.encrypted", upload.Filename)
	if _, err := s.staging.Save(encryptedName, ciphertext); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage encrypted paper")
	}

	// The content id is assigned by the content store at finalization time;
	// until then the wrapped reference is the staged artifact name.
	fields, privateKeyPEM, err := s.wrapper.Wrap(encryptedName, key, actor.TeacherID)
	if err != nil {
		_ = s.staging.Delete(encryptedName)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to wrap key material")
	}

	keyName := fmt.Sprintf("%s_private_key.pem", actor.TeacherID)
	if _, err := s.staging.Save(keyName, privateKeyPEM); err != nil {
		_ = s.staging.Delete(encryptedName)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist private key")
	}

	record.WrappedContentID = fields.WrappedContentID
	record.WrappedKey = fields.WrappedKey
	record.WrappedSetterID = fields.WrappedSetterID
	record.PrivateKeyPath = &keyName
	record.EncryptedPath = &encryptedName

	if err := s.requests.AttachUpload(ctx, record); err != nil {
		_ = s.staging.Delete(encryptedName)
		_ = s.staging.Delete(keyName)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request is not accepted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist upload")
	}

	s.logger.Info("paper staged for finalization",
		zap.String("request_id", record.ID),
		zap.String("subject_code", record.SubjectCode),
	)
	return record, nil
}

func (s *RequestService) saveAsset(subjectCode, kind string, upload PaperUpload) (string, error) {
	if len(upload.Content) == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s file is required", kind))
	}
	name := fmt.Sprintf("assets/%s_%s_%s", subjectCode, kind, uuid.NewString())
	if _, err := s.staging.Save(name, upload.Content); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to store %s", kind))
	}
	return name, nil
}
