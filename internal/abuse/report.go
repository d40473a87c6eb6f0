package abuse

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// validReportReasons mirrors the CHECK constraint on the abuse_reports
// table (see migrations/0001_create_abuse_reports.up.sql).
var validReportReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"other":      true,
}

// ReportStore persists abuse reports to Postgres. It is entirely optional
// (§4.5a, §2b): when DATABASE_URL is unset, reports still drive the Redis
// ban escalation in BanStore, they simply aren't durably recorded for
// moderator review.
type ReportStore struct {
	db *sql.DB
}

// Report is one filed abuse report.
type Report struct {
	ReporterUserID string
	ReportedUserID string
	RoomID         string
	Reason         string
}

// NewReportStore constructs a ReportStore backed by db.
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Create inserts an abuse report. A reason outside the allowed values is
// stored as "other" rather than failing the report outright.
func (s *ReportStore) Create(ctx context.Context, r Report) error {
	if !validReportReasons[r.Reason] {
		r.Reason = "other"
	}

	const query = `
		INSERT INTO abuse_reports (reporter_user_id, reported_user_id, room_id, reason)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, r.ReporterUserID, r.ReportedUserID, r.RoomID, r.Reason)
	if err != nil {
		return fmt.Errorf("abuse: insert report: %w", err)
	}
	return nil
}

// CountRecent returns how many reports have been filed against userID
// within window, for moderator-facing tooling or alternative escalation
// policies built directly on Postgres instead of the Redis counter.
func (s *ReportStore) CountRecent(ctx context.Context, userID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM abuse_reports
		WHERE reported_user_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, window.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("abuse: count recent reports: %w", err)
	}
	return count, nil
}
