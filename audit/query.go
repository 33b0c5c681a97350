package audit

import (
	"context"
	"time"

	"github.com/kasuganosora/ashenguild/model"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// Filter narrows Recent. Zero fields match everything.
type Filter struct {
	GuildID   *int64
	Action    string
	Transport string
	TraceID   string
	Limit     int
}

// Recent returns persisted entries matching f, newest first. Entries still
// queued for the next batch are not visible yet.
func (svc *Service) Recent(ctx context.Context, f Filter) ([]model.AuditLog, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	q := svc.db.WithContext(ctx).Model(&model.AuditLog{})
	if f.GuildID != nil {
		q = q.Where("guild_id = ?", *f.GuildID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Transport != "" {
		q = q.Where("transport = ?", f.Transport)
	}
	if f.TraceID != "" {
		q = q.Where("trace_id = ?", f.TraceID)
	}

	var logs []model.AuditLog
	if err := q.Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// Purge deletes entries created before cutoff and returns how many went.
func (svc *Service) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := svc.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.AuditLog{})
	return res.RowsAffected, res.Error
}
