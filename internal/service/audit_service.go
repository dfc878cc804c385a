package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opencoe/exam-paper-api/internal/models"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
	"github.com/opencoe/exam-paper-api/pkg/export"
)

const auditHistoryKey = "audit:history"

type eventHistory interface {
	History(ctx context.Context) ([]models.LedgerEvent, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// AuditService serves the on-chain audit trail, with a short Redis cache in
// front of the log replay.
type AuditService struct {
	ledger   eventHistory
	cache    *redis.Client
	exporter pdfRenderer
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewAuditService constructs the service. cache may be nil, in which case
// every call replays the event log.
func NewAuditService(ledger eventHistory, cache *redis.Client, exporter pdfRenderer, cacheTTL time.Duration, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		ledger:   ledger,
		cache:    cache,
		exporter: exporter,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// History returns the merged upload/download trail, newest first.
func (s *AuditService) History(ctx context.Context, actor *models.JWTClaims) ([]models.LedgerEvent, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleCOE {
		return nil, appErrors.ErrForbidden
	}

	if events, ok := s.fromCache(ctx); ok {
		return events, nil
	}

	events, err := s.ledger.History(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, events)
	return events, nil
}

// ExportPDF renders the audit trail as a tabular PDF report.
func (s *AuditService) ExportPDF(ctx context.Context, actor *models.JWTClaims) ([]byte, error) {
	events, err := s.History(ctx, actor)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Timestamp", "Event", "Paper ID", "Filename", "Initiator", "Block", "Tx Hash"},
		Rows:    make([]map[string]string, 0, len(events)),
	}
	for _, ev := range events {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Timestamp": ev.Timestamp.UTC().Format(time.RFC3339),
			"Event":     string(ev.EventType),
			"Paper ID":  strconv.FormatInt(ev.PaperID, 10),
			"Filename":  ev.Filename,
			"Initiator": ev.Initiator,
			"Block":     strconv.FormatUint(ev.BlockNumber, 10),
			"Tx Hash":   shortHash(ev.TxHash),
		})
	}

	report, err := s.exporter.Render(dataset, "Paper Registry Audit Trail")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit report")
	}
	return report, nil
}

func (s *AuditService) fromCache(ctx context.Context) ([]models.LedgerEvent, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, auditHistoryKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("audit cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var events []models.LedgerEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		s.logger.Warn("audit cache decode failed", zap.Error(err))
		return nil, false
	}
	return events, true
}

func (s *AuditService) toCache(ctx context.Context, events []models.LedgerEvent) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, auditHistoryKey, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("audit cache write failed", zap.Error(err))
	}
}

func shortHash(hash string) string {
	if len(hash) <= 18 {
		return hash
	}
	return fmt.Sprintf("%s..%s", hash[:10], hash[len(hash)-6:])
}
