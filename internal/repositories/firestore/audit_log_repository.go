package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/raistore/storefront/internal/domain"
	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/repositories"
)

const auditLogsCollection = "auditLogs"

// AuditLogRepository appends audit entries. Entries are never updated.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection, nil, nil)
	return &AuditLogRepository{base: base}, nil
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

// Append creates the entry. When the context carries a transaction the entry
// commits or rolls back with it.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("audit log append: id is required")
	}
	return r.base.Create(ctx, entry.ID, newAuditLogDocument(entry))
}

// ListByTarget returns the newest entries recorded against targetRef.
func (r *AuditLogRepository) ListByTarget(ctx context.Context, targetRef string, limit int) ([]domain.AuditLogEntry, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("audit log repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("targetRef", "==", strings.TrimSpace(targetRef)).OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data.toDomain(doc.ID))
	}
	return entries, nil
}

type auditLogDocument struct {
	Actor     string         `firestore:"actor"`
	ActorType string         `firestore:"actorType"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef"`
	Reason    string         `firestore:"reason,omitempty"`
	Diff      map[string]any `firestore:"diff,omitempty"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	RequestID string         `firestore:"requestId,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

func newAuditLogDocument(e domain.AuditLogEntry) auditLogDocument {
	return auditLogDocument{
		Actor:     e.Actor,
		ActorType: e.ActorType,
		Action:    e.Action,
		TargetRef: e.TargetRef,
		Reason:    e.Reason,
		Diff:      e.Diff,
		Metadata:  e.Metadata,
		RequestID: e.RequestID,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func (d auditLogDocument) toDomain(id string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:        id,
		Actor:     d.Actor,
		ActorType: d.ActorType,
		Action:    d.Action,
		TargetRef: d.TargetRef,
		Reason:    d.Reason,
		Diff:      d.Diff,
		Metadata:  d.Metadata,
		RequestID: d.RequestID,
		CreatedAt: d.CreatedAt.UTC(),
	}
}
