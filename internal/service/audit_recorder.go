package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/bibleschool-api/internal/models"
	"github.com/noah-isme/bibleschool-api/pkg/jobs"
	"github.com/noah-isme/bibleschool-api/pkg/logger"
	"github.com/noah-isme/bibleschool-api/pkg/middleware/requestid"
)

const auditRetryJobType = "audit.append"

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditRetryQueue interface {
	TryEnqueue(job jobs.Job) error
}

// AuditRecorder appends audit entries after the primary write has committed.
// Appends are best-effort: a failure is logged and handed to the retry queue,
// and never reported back to the caller of the workflow operation.
type AuditRecorder struct {
	repo    auditLogWriter
	retries auditRetryQueue
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditRecorder constructs an AuditRecorder.
func NewAuditRecorder(repo auditLogWriter, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{repo: repo, logger: logger, now: time.Now}
}

// UseRetryQueue attaches the queue used for failed appends.
func (r *AuditRecorder) UseRetryQueue(queue auditRetryQueue) {
	r.retries = queue
}

// Append records one entry. The request id from ctx is added to the metadata.
func (r *AuditRecorder) Append(ctx context.Context, action string, subjectStudentID *string, performedBy string, metadata map[string]interface{}) {
	entry, err := r.buildEntry(ctx, action, subjectStudentID, performedBy, metadata)
	if err != nil {
		r.logger.Error("failed to encode audit metadata", zap.String("action", action), zap.Error(err))
		return
	}

	if err := r.repo.CreateAuditLog(ctx, entry); err != nil {
		logger.ForRequest(ctx, r.logger).Warn("failed to persist audit log",
			zap.String("action", action),
			zap.String("audit_id", entry.ID),
			zap.Error(err),
		)
		r.scheduleRetry(entry)
	}
}

// HandleRetry is the jobs.Handler for queued audit entries.
func (r *AuditRecorder) HandleRetry(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		r.logger.Error("unexpected audit retry payload", zap.String("job_id", job.ID))
		return nil
	}
	return r.repo.CreateAuditLog(ctx, entry)
}

// DropExhausted logs an entry the retry queue gave up on, with enough detail to replay it by hand.
func (r *AuditRecorder) DropExhausted(job jobs.Job, err error) {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return
	}
	r.logger.Error("audit log dropped after retries",
		zap.String("action", entry.Action),
		zap.String("audit_id", entry.ID),
		zap.String("performed_by", entry.PerformedBy),
		zap.Int("attempts", job.Attempt),
		zap.ByteString("metadata", entry.Metadata),
		zap.Error(err),
	)
}

func (r *AuditRecorder) buildEntry(ctx context.Context, action string, subjectStudentID *string, performedBy string, metadata map[string]interface{}) (*models.AuditLog, error) {
	payload := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if reqID := requestid.FromContext(ctx); reqID != "" {
		payload["request_id"] = reqID
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit metadata: %w", err)
	}
	return &models.AuditLog{
		ID:               uuid.NewString(),
		Action:           action,
		SubjectStudentID: subjectStudentID,
		PerformedBy:      performedBy,
		Metadata:         types.JSONText(raw),
		CreatedAt:        r.now().UTC(),
	}, nil
}

func (r *AuditRecorder) scheduleRetry(entry *models.AuditLog) {
	if r.retries == nil {
		r.logger.Error("audit log dropped", zap.String("action", entry.Action), zap.String("audit_id", entry.ID))
		return
	}
	job := jobs.Job{ID: entry.ID, Type: auditRetryJobType, Payload: entry}
	if err := r.retries.TryEnqueue(job); err != nil {
		r.logger.Error("audit log dropped", zap.String("action", entry.Action), zap.String("audit_id", entry.ID), zap.Error(err))
	}
}
