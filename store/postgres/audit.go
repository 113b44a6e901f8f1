package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ansyfirmansyah/libauth/domain"
)

// AuditRepository implements domain.AuditRepository on user_activity_audit.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one record.
func (r *AuditRepository) Append(ctx context.Context, rec *domain.AuditRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_activity_audit (id, user_id, email, activity_type, success, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		rec.UserID,
		rec.Email,
		string(rec.ActivityType),
		rec.Success,
		rec.IPAddress,
		rec.UserAgent,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// CountByIPSince counts records of one activity type from ip after since.
func (r *AuditRepository) CountByIPSince(ctx context.Context, ip string, activity domain.ActivityType, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM user_activity_audit
		WHERE ip_address = $1 AND activity_type = $2 AND created_at > $3`,
		ip, string(activity), since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}
