package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapor-kita/backend/internal/models"
	"github.com/lapor-kita/backend/internal/pipeline"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ---- job queue ----

const jobColumns = `id, report_id, status, confidence_score, retry_count, error_message, submitted_at, processed_at, last_attempt_at`

func scanJob(row pgx.Row) (*models.ReportJob, error) {
	var j models.ReportJob
	err := row.Scan(&j.ID, &j.ReportID, &j.Status, &j.Confidence, &j.RetryCount, &j.ErrorMessage, &j.SubmittedAt, &j.ProcessedAt, &j.LastAttemptAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) CreateJob(ctx context.Context, reportID uuid.UUID, confidence float64) (*models.ReportJob, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO report_jobs (report_id, status, confidence_score, retry_count, submitted_at)
		VALUES ($1, 'submitted', $2, 0, NOW())
		RETURNING `+jobColumns, reportID, confidence)
	j, err := scanJob(row)
	if err != nil {
		return nil, pipeline.Databasef("create job: %v", err)
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*models.ReportJob, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM report_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFoundf("job %s", id)
		}
		return nil, pipeline.Databasef("get job: %v", err)
	}
	return j, nil
}

// ClaimPending atomically moves a batch of eligible jobs to processing and
// returns them. The locked CTE plus the status precondition guarantee each
// job is handed to exactly one worker, even with multiple processor
// instances polling the same table.
func (s *Store) ClaimPending(ctx context.Context, maxRetries, batchSize int) ([]models.ReportJob, error) {
	rows, err := s.Pool.Query(ctx, `
		WITH next AS (
			SELECT id FROM report_jobs
			WHERE status = 'submitted' AND retry_count < $1
			ORDER BY submitted_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE report_jobs j
		SET status = 'processing', last_attempt_at = NOW()
		FROM next
		WHERE j.id = next.id
		RETURNING j.id, j.report_id, j.status, j.confidence_score, j.retry_count, j.error_message, j.submitted_at, j.processed_at, j.last_attempt_at
	`, maxRetries, batchSize)
	if err != nil {
		return nil, pipeline.Databasef("claim jobs: %v", err)
	}
	defer rows.Close()

	var out []models.ReportJob
	for rows.Next() {
		var j models.ReportJob
		if err := rows.Scan(&j.ID, &j.ReportID, &j.Status, &j.Confidence, &j.RetryCount, &j.ErrorMessage, &j.SubmittedAt, &j.ProcessedAt, &j.LastAttemptAt); err != nil {
			return nil, pipeline.Databasef("scan claimed job: %v", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, pipeline.Databasef("claim jobs: %v", err)
	}
	return out, nil
}

func (s *Store) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE report_jobs
		SET status = 'completed', error_message = NULL, processed_at = NOW()
		WHERE id = $1
	`, jobID)
	if err != nil {
		return pipeline.Databasef("mark job completed: %v", err)
	}
	return nil
}

// MarkFailed records a failed attempt in one statement: the retry counter
// increments and the status flips to failed only once the counter reaches
// the limit, otherwise the job goes back to submitted for a later batch.
func (s *Store) MarkFailed(ctx context.Context, jobID uuid.UUID, maxRetries int, message string) (*models.ReportJob, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE report_jobs
		SET retry_count = retry_count + 1,
			status = CASE WHEN retry_count + 1 >= $2 THEN 'failed' ELSE 'submitted' END,
			error_message = $3,
			last_attempt_at = NOW()
		WHERE id = $1
		RETURNING `+jobColumns, jobID, maxRetries, message)
	j, err := scanJob(row)
	if err != nil {
		return nil, pipeline.Databasef("mark job failed: %v", err)
	}
	return j, nil
}

// MarkFailedPermanently skips retry bookkeeping for errors no retry can fix,
// like a report whose conversation reference is gone.
func (s *Store) MarkFailedPermanently(ctx context.Context, jobID uuid.UUID, message string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE report_jobs
		SET status = 'failed', error_message = $2, last_attempt_at = NOW()
		WHERE id = $1
	`, jobID, message)
	if err != nil {
		return pipeline.Databasef("mark job failed permanently: %v", err)
	}
	return nil
}

// RequeueStale puts jobs stuck in processing back on the queue. A claim
// whose last attempt is older than the lease means its worker died mid-batch
// or never managed to settle the job state, so nothing else will touch it.
func (s *Store) RequeueStale(ctx context.Context, lease time.Duration) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE report_jobs
		SET status = 'submitted'
		WHERE status = 'processing' AND last_attempt_at < NOW() - $1
	`, lease)
	if err != nil {
		return 0, pipeline.Databasef("requeue stale jobs: %v", err)
	}
	return tag.RowsAffected(), nil
}

// ---- reports ----

const reportColumns = `id, reference_number, thread_id, cluster_id, title, description, timeline, impact, status, user_id, platform, created_at, updated_at`

func scanReport(row pgx.Row) (*models.Report, error) {
	var r models.Report
	err := row.Scan(&r.ID, &r.ReferenceNumber, &r.ThreadID, &r.ClusterID, &r.Title, &r.Description, &r.Timeline, &r.Impact, &r.Status, &r.UserID, &r.Platform, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReport inserts a pending report for a conversation thread and
// assigns its public reference number from the yearly sequence.
func (s *Store) CreateReport(ctx context.Context, threadID uuid.UUID, userID, platform *string) (*models.Report, error) {
	var seq int64
	if err := s.Pool.QueryRow(ctx, `SELECT nextval('report_reference_seq')`).Scan(&seq); err != nil {
		return nil, pipeline.Databasef("next reference number: %v", err)
	}
	ref := fmt.Sprintf("RPT-%d-%07d", time.Now().Year(), seq)

	row := s.Pool.QueryRow(ctx, `
		INSERT INTO reports (reference_number, thread_id, status, user_id, platform, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $4, NOW(), NOW())
		RETURNING `+reportColumns, ref, threadID, userID, platform)
	r, err := scanReport(row)
	if err != nil {
		return nil, pipeline.Databasef("create report: %v", err)
	}
	return r, nil
}

func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFoundf("report %s", id)
		}
		return nil, pipeline.Databasef("get report: %v", err)
	}
	return r, nil
}

func (s *Store) UpdateReportContent(ctx context.Context, id uuid.UUID, title, description, timeline, impact *string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE reports
		SET title = $2, description = $3, timeline = $4, impact = $5, updated_at = NOW()
		WHERE id = $1
	`, id, title, description, timeline, impact)
	if err != nil {
		return pipeline.Databasef("update report content: %v", err)
	}
	return nil
}

func (s *Store) RejectReport(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE reports
		SET status = 'rejected', rejection_reason = $2, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return pipeline.Databasef("reject report: %v", err)
	}
	return nil
}

func (s *Store) SetReportCluster(ctx context.Context, reportID, clusterID uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE reports SET cluster_id = $2, updated_at = NOW() WHERE id = $1
	`, reportID, clusterID)
	if err != nil {
		return pipeline.Databasef("set report cluster: %v", err)
	}
	return nil
}

// ---- categories and tags ----

// LookupCategoryBySlug returns nil when the slug does not name an active
// category; the caller skips the assignment and logs.
func (s *Store) LookupCategoryBySlug(ctx context.Context, slug string) (*uuid.UUID, error) {
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx, `
		SELECT id FROM report_categories WHERE slug = $1 AND is_active
	`, slug).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pipeline.Databasef("lookup category %q: %v", slug, err)
	}
	return &id, nil
}

// UpsertCategoryAssignment is keyed by (report, category) so a retried
// attempt refreshes the severity instead of stacking duplicate rows.
func (s *Store) UpsertCategoryAssignment(ctx context.Context, reportID, categoryID uuid.UUID, severity models.Severity) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO report_category_assignments (report_id, category_id, severity)
		VALUES ($1, $2, $3)
		ON CONFLICT (report_id, category_id) DO UPDATE SET severity = EXCLUDED.severity
	`, reportID, categoryID, severity)
	if err != nil {
		return pipeline.Databasef("upsert category assignment: %v", err)
	}
	return nil
}

func (s *Store) UpsertTag(ctx context.Context, reportID uuid.UUID, tag models.TagType) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO report_tags (report_id, tag_type)
		VALUES ($1, $2)
		ON CONFLICT (report_id) DO NOTHING
	`, reportID, tag)
	if err != nil {
		return pipeline.Databasef("upsert tag: %v", err)
	}
	return nil
}

// ---- locations ----

// SaveLocation upserts the report's location keyed by report id, so a
// retried attempt overwrites the partial row from the previous one.
func (s *Store) SaveLocation(ctx context.Context, loc *models.ReportLocation) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO report_locations (
			report_id, raw_input, display_name, lat, lon, osm_id, osm_type,
			road, neighbourhood, suburb, city, state, postcode, country_code,
			bounding_box, geocoding_source, geocoding_score,
			province_id, regency_id, district_id, village_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,NOW())
		ON CONFLICT (report_id) DO UPDATE SET
			raw_input = EXCLUDED.raw_input,
			display_name = EXCLUDED.display_name,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			osm_id = EXCLUDED.osm_id,
			osm_type = EXCLUDED.osm_type,
			road = EXCLUDED.road,
			neighbourhood = EXCLUDED.neighbourhood,
			suburb = EXCLUDED.suburb,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postcode = EXCLUDED.postcode,
			country_code = EXCLUDED.country_code,
			bounding_box = EXCLUDED.bounding_box,
			geocoding_source = EXCLUDED.geocoding_source,
			geocoding_score = EXCLUDED.geocoding_score,
			province_id = EXCLUDED.province_id,
			regency_id = EXCLUDED.regency_id,
			district_id = EXCLUDED.district_id,
			village_id = EXCLUDED.village_id
	`, loc.ReportID, loc.RawInput, loc.DisplayName, loc.Lat, loc.Lon, loc.OSMID, loc.OSMType,
		loc.Road, loc.Neighbourhood, loc.Suburb, loc.City, loc.State, loc.Postcode, loc.CountryCode,
		loc.BoundingBox, loc.GeocodingSource, loc.GeocodingScore,
		loc.ProvinceID, loc.RegencyID, loc.DistrictID, loc.VillageID)
	if err != nil {
		return pipeline.Databasef("save location: %v", err)
	}
	return nil
}

// ---- region catalog ----

var regionTables = map[string]struct {
	table        string
	parentColumn string
}{
	"province": {table: "provinces"},
	"regency":  {table: "regencies", parentColumn: "province_id"},
	"district": {table: "districts", parentColumn: "regency_id"},
	"village":  {table: "villages", parentColumn: "district_id"},
}

// findRegion runs the fuzzy name lookup on one catalog table: exact
// case-insensitive matches rank before substring containment, optionally
// narrowed to one parent. Returns nil on no match.
func (s *Store) findRegion(ctx context.Context, level, name string, parentID *uuid.UUID) (*models.Region, error) {
	tbl, ok := regionTables[level]
	if !ok {
		return nil, pipeline.Databasef("unknown region level %q", level)
	}

	parentSelect := "NULL"
	if tbl.parentColumn != "" {
		parentSelect = tbl.parentColumn
	}
	query := fmt.Sprintf(`
		SELECT id, code, name, lat, lng, %s
		FROM %s
		WHERE name ILIKE '%%' || $1 || '%%'
	`, parentSelect, tbl.table)
	args := []any{name}
	if parentID != nil && tbl.parentColumn != "" {
		args = append(args, *parentID)
		query += fmt.Sprintf(" AND %s = $2", tbl.parentColumn)
	}
	query += `
		ORDER BY CASE WHEN LOWER(name) = LOWER($1) THEN 0 ELSE 1 END, name ASC
		LIMIT 1
	`

	var r models.Region
	r.Level = level
	err := s.Pool.QueryRow(ctx, query, args...).Scan(&r.ID, &r.Code, &r.Name, &r.Lat, &r.Lng, &r.ParentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pipeline.Databasef("find %s %q: %v", level, name, err)
	}
	return &r, nil
}

func (s *Store) FindProvince(ctx context.Context, name string) (*models.Region, error) {
	return s.findRegion(ctx, "province", name, nil)
}

func (s *Store) FindRegency(ctx context.Context, name string, provinceID *uuid.UUID) (*models.Region, error) {
	return s.findRegion(ctx, "regency", name, provinceID)
}

func (s *Store) FindDistrict(ctx context.Context, name string, regencyID *uuid.UUID) (*models.Region, error) {
	return s.findRegion(ctx, "district", name, regencyID)
}

func (s *Store) FindVillage(ctx context.Context, name string, districtID *uuid.UUID) (*models.Region, error) {
	return s.findRegion(ctx, "village", name, districtID)
}

func (s *Store) GetRegion(ctx context.Context, level string, id uuid.UUID) (*models.Region, error) {
	tbl, ok := regionTables[level]
	if !ok {
		return nil, pipeline.Databasef("unknown region level %q", level)
	}
	parentSelect := "NULL"
	if tbl.parentColumn != "" {
		parentSelect = tbl.parentColumn
	}
	var r models.Region
	r.Level = level
	err := s.Pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, code, name, lat, lng, %s FROM %s WHERE id = $1
	`, parentSelect, tbl.table), id).Scan(&r.ID, &r.Code, &r.Name, &r.Lat, &r.Lng, &r.ParentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pipeline.Databasef("get %s %s: %v", level, id, err)
	}
	return &r, nil
}

// ---- clusters ----

const clusterColumns = `id, name, center_lat, center_lon, radius_meters, report_count, status, created_at, updated_at`

func scanCluster(row pgx.Row) (*models.ReportCluster, error) {
	var c models.ReportCluster
	err := row.Scan(&c.ID, &c.Name, &c.CenterLat, &c.CenterLon, &c.RadiusMeters, &c.ReportCount, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ClustersInBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]models.ReportCluster, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+clusterColumns+`
		FROM report_clusters
		WHERE status = 'active'
			AND center_lat BETWEEN $1 AND $2
			AND center_lon BETWEEN $3 AND $4
		ORDER BY created_at ASC
	`, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, pipeline.Databasef("query clusters: %v", err)
	}
	defer rows.Close()

	var out []models.ReportCluster
	for rows.Next() {
		var c models.ReportCluster
		if err := rows.Scan(&c.ID, &c.Name, &c.CenterLat, &c.CenterLon, &c.RadiusMeters, &c.ReportCount, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, pipeline.Databasef("scan cluster: %v", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pipeline.Databasef("query clusters: %v", err)
	}
	return out, nil
}

func (s *Store) CreateCluster(ctx context.Context, c *models.ReportCluster) (*models.ReportCluster, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO report_clusters (name, center_lat, center_lon, radius_meters, report_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+clusterColumns, c.Name, c.CenterLat, c.CenterLon, c.RadiusMeters, c.ReportCount, c.Status)
	created, err := scanCluster(row)
	if err != nil {
		return nil, pipeline.Databasef("create cluster: %v", err)
	}
	return created, nil
}

// AddReport folds one point into a cluster's running centroid.
// The arithmetic lives in the UPDATE itself so concurrent inserts against
// the same cluster serialize on the row lock and no update is lost.
func (s *Store) AddReport(ctx context.Context, clusterID uuid.UUID, lat, lon float64) (*models.ReportCluster, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE report_clusters
		SET center_lat = (center_lat * report_count + $2) / (report_count + 1),
			center_lon = (center_lon * report_count + $3) / (report_count + 1),
			report_count = report_count + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+clusterColumns, clusterID, lat, lon)
	updated, err := scanCluster(row)
	if err != nil {
		return nil, pipeline.Databasef("add report to cluster: %v", err)
	}
	return updated, nil
}

func (s *Store) ListClusters(ctx context.Context, limit int) ([]models.ReportCluster, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+clusterColumns+`
		FROM report_clusters
		ORDER BY report_count DESC, updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, pipeline.Databasef("list clusters: %v", err)
	}
	defer rows.Close()

	var out []models.ReportCluster
	for rows.Next() {
		var c models.ReportCluster
		if err := rows.Scan(&c.ID, &c.Name, &c.CenterLat, &c.CenterLon, &c.RadiusMeters, &c.ReportCount, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, pipeline.Databasef("scan cluster: %v", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- conversations ----

func (s *Store) GetMessages(ctx context.Context, threadID uuid.UUID) ([]models.ChatMessage, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT role, content FROM chat_messages
		WHERE thread_id = $1
		ORDER BY created_at ASC
	`, threadID)
	if err != nil {
		return nil, pipeline.Databasef("get messages: %v", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Role, &m.Text); err != nil {
			return nil, pipeline.Databasef("scan message: %v", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CopyAttachments links the conversation's uploaded files to the report by
// opaque id. Insert-select keeps it a single statement; the conflict clause
// makes retried attempts harmless.
func (s *Store) CopyAttachments(ctx context.Context, threadID, reportID uuid.UUID) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		INSERT INTO report_attachments (report_id, file_id, created_at)
		SELECT $2, file_id, NOW()
		FROM chat_attachments
		WHERE thread_id = $1
		ON CONFLICT (report_id, file_id) DO NOTHING
	`, threadID, reportID)
	if err != nil {
		return 0, pipeline.Databasef("copy attachments: %v", err)
	}
	return tag.RowsAffected(), nil
}
