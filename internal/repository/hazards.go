package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/geo"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

const hazardColumns = `id, type, latitude, longitude, severity, status, upvotes, downvotes,
	address, description, contributor_name, verified_at, verified_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHazard(row rowScanner) (models.HazardReport, error) {
	var (
		h          models.HazardReport
		verifiedAt sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(
		&h.ID, &h.Type, &h.Location.Lat, &h.Location.Lon, &h.Severity, &h.Status,
		&h.Votes.Upvotes, &h.Votes.Downvotes,
		&h.Address, &h.Description, &h.ContributorName,
		&verifiedAt, &h.VerifiedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return h, err
	}

	if verifiedAt.Valid {
		t := time.UnixMilli(verifiedAt.Int64).UTC()
		h.VerifiedAt = &t
	}
	h.CreatedAt = time.UnixMilli(createdAt).UTC()
	h.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return h, nil
}

// Create validates and inserts a new report. The store assigns the id,
// timestamps and the default pending status.
func (s *Store) Create(ctx context.Context, h *models.HazardReport) error {
	const op = "repository.Create"

	if h.Severity == "" {
		h.Severity = models.SeverityMedium
	}
	if h.Status == "" {
		h.Status = models.StatusPending
	}
	if err := h.Validate(); err != nil {
		return apperr.Validation(op, "%v", err)
	}

	h.ID = uuid.NewString()
	now := s.now().UTC().Truncate(time.Millisecond)
	h.CreatedAt, h.UpdatedAt = now, now

	var verifiedAt sql.NullInt64
	if h.Status == models.StatusVerified {
		h.VerifiedAt = &now
		verifiedAt = sql.NullInt64{Int64: now.UnixMilli(), Valid: true}
	} else {
		h.VerifiedAt = nil
		h.VerifiedBy = ""
	}

	ph := newPlaceholderGenerator(s.driver)
	marks := make([]string, 15)
	for i := range marks {
		marks[i] = ph()
	}
	query := fmt.Sprintf(`INSERT INTO hazards (%s) VALUES (%s)`, hazardColumns, strings.Join(marks, ", "))

	_, err := s.db.ExecContext(ctx, query,
		h.ID, h.Type, h.Location.Lat, h.Location.Lon, h.Severity, h.Status,
		h.Votes.Upvotes, h.Votes.Downvotes,
		h.Address, h.Description, h.ContributorName,
		verifiedAt, h.VerifiedBy, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("hazard store: failed to insert hazard: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.HazardReport, error) {
	ph := newPlaceholderGenerator(s.driver)
	query := fmt.Sprintf(`SELECT %s FROM hazards WHERE id = %s`, hazardColumns, ph())

	h, err := scanHazard(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("repository.GetByID", "hazard %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("hazard store: failed to get hazard: %w", err)
	}
	return &h, nil
}

// List returns reports newest first.
func (s *Store) List(ctx context.Context, opts Filter) ([]models.HazardReport, error) {
	ph := newPlaceholderGenerator(s.driver)
	where, args := filterClause(opts, ph)

	query := fmt.Sprintf(`SELECT %s FROM hazards%s ORDER BY created_at DESC, id LIMIT %s`, hazardColumns, where, ph())
	args = append(args, clampLimit(opts.Limit))

	return s.query(ctx, query, args...)
}

// Nearby returns reports within radiusKm of center, nearest first. A
// bounding box narrows the scan in SQL; haversine confirms each row.
func (s *Store) Nearby(ctx context.Context, center models.Coordinate, radiusKm float64, opts Filter) ([]NearbyHazard, error) {
	const op = "repository.Nearby"
	if err := center.Validate(); err != nil {
		return nil, apperr.Validation(op, "center: %v", err)
	}
	if radiusKm <= 0 {
		return nil, apperr.Validation(op, "radius must be positive, got %v", radiusKm)
	}

	ph := newPlaceholderGenerator(s.driver)
	where, args := filterClause(opts, ph)

	box := geo.BoundingBox(center, radiusKm*1000)
	boxClause := fmt.Sprintf("latitude BETWEEN %s AND %s AND longitude BETWEEN %s AND %s", ph(), ph(), ph(), ph())
	if where == "" {
		where = " WHERE " + boxClause
	} else {
		where += " AND " + boxClause
	}
	args = append(args, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)

	rows, err := s.query(ctx, fmt.Sprintf(`SELECT %s FROM hazards%s`, hazardColumns, where), args...)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyHazard, 0, len(rows))
	for _, h := range rows {
		d := geo.HaversineMeters(center, h.Location) / 1000
		if d <= radiusKm {
			out = append(out, NearbyHazard{HazardReport: h, DistanceKm: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].ID < out[j].ID
	})

	if limit := clampLimit(opts.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus moderates a report. Verifying stamps verified_at and
// verified_by; any other status clears them.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.Status, verifiedBy string) (*models.HazardReport, error) {
	const op = "repository.UpdateStatus"
	if _, err := models.ParseStatus(string(status)); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}

	now := s.now().UTC().Truncate(time.Millisecond).UnixMilli()
	var verifiedAt sql.NullInt64
	if status == models.StatusVerified {
		verifiedAt = sql.NullInt64{Int64: now, Valid: true}
	} else {
		verifiedBy = ""
	}

	ph := newPlaceholderGenerator(s.driver)
	query := fmt.Sprintf(`UPDATE hazards SET status = %s, verified_at = %s, verified_by = %s, updated_at = %s WHERE id = %s`,
		ph(), ph(), ph(), ph(), ph())

	if err := s.execOne(ctx, op, id, query, status, verifiedAt, verifiedBy, now, id); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *Store) Vote(ctx context.Context, id string, up bool) (*models.HazardReport, error) {
	const op = "repository.Vote"

	column := "downvotes"
	if up {
		column = "upvotes"
	}

	ph := newPlaceholderGenerator(s.driver)
	query := fmt.Sprintf(`UPDATE hazards SET %[1]s = %[1]s + 1, updated_at = %[2]s WHERE id = %[3]s`, column, ph(), ph())

	now := s.now().UTC().Truncate(time.Millisecond).UnixMilli()
	if err := s.execOne(ctx, op, id, query, now, id); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	ph := newPlaceholderGenerator(s.driver)
	query := fmt.Sprintf(`DELETE FROM hazards WHERE id = %s`, ph())
	return s.execOne(ctx, "repository.Delete", id, query, id)
}

func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, status, COUNT(*) FROM hazards GROUP BY type, status`)
	if err != nil {
		return nil, fmt.Errorf("hazard store: failed to query statistics: %w", err)
	}
	defer rows.Close()

	byType := make(map[models.HazardType]*TypeStatistics)
	for _, t := range models.HazardTypes {
		byType[t] = &TypeStatistics{Type: t}
	}

	stats := &Statistics{}
	for rows.Next() {
		var (
			t      models.HazardType
			status models.Status
			count  int
		)
		if err := rows.Scan(&t, &status, &count); err != nil {
			return nil, fmt.Errorf("hazard store: failed to scan statistics: %w", err)
		}

		ts, ok := byType[t]
		if !ok {
			ts = &TypeStatistics{Type: t}
			byType[t] = ts
		}
		ts.Count += count
		stats.Total += count

		switch status {
		case models.StatusVerified:
			ts.Verified += count
			stats.Verified += count
		case models.StatusPending:
			ts.Pending += count
			stats.Pending += count
		case models.StatusRejected:
			ts.Rejected += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hazard store: failed to read statistics: %w", err)
	}

	for _, t := range models.HazardTypes {
		stats.ByType = append(stats.ByType, *byType[t])
		delete(byType, t)
	}
	for _, ts := range byType {
		stats.ByType = append(stats.ByType, *ts)
	}
	return stats, nil
}

// LoadHazards reads every report the index may admit. Rejected reports
// never leave the store.
func (s *Store) LoadHazards(ctx context.Context) ([]models.HazardReport, error) {
	ph := newPlaceholderGenerator(s.driver)
	query := fmt.Sprintf(`SELECT %s FROM hazards WHERE status <> %s ORDER BY id`, hazardColumns, ph())
	return s.query(ctx, query, models.StatusRejected)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.HazardReport, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hazard store: failed to query hazards: %w", err)
	}
	defer rows.Close()

	var out []models.HazardReport
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, fmt.Errorf("hazard store: failed to scan hazard: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hazard store: failed to read hazards: %w", err)
	}
	return out, nil
}

// execOne runs a statement that must touch exactly the row with id.
func (s *Store) execOne(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("hazard store: %s failed: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hazard store: %s failed: %w", op, err)
	}
	if n == 0 {
		return apperr.NotFound(op, "hazard %s not found", id)
	}
	return nil
}

func filterClause(opts Filter, ph func() string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if opts.Type != nil {
		conds = append(conds, "type = "+ph())
		args = append(args, *opts.Type)
	}
	if opts.Status != nil {
		conds = append(conds, "status = "+ph())
		args = append(args, *opts.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
