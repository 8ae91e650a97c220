// Package service runs the asynchronous report processing pipeline:
// claim queued jobs, extract structured fields from the conversation,
// geocode, resolve administrative regions, cluster, and settle job state.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lapor-kita/backend/internal/ai"
	"github.com/lapor-kita/backend/internal/cluster"
	"github.com/lapor-kita/backend/internal/geocode"
	"github.com/lapor-kita/backend/internal/models"
	"github.com/lapor-kita/backend/internal/pipeline"
	"github.com/lapor-kita/backend/internal/regions"
	"github.com/lapor-kita/backend/internal/telemetry"
)

// JobStore is the queue side of storage.
type JobStore interface {
	ClaimPending(ctx context.Context, maxRetries, batchSize int) ([]models.ReportJob, error)
	RequeueStale(ctx context.Context, lease time.Duration) (int64, error)
	MarkCompleted(ctx context.Context, jobID uuid.UUID) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, maxRetries int, message string) (*models.ReportJob, error)
	MarkFailedPermanently(ctx context.Context, jobID uuid.UUID, message string) error
}

// ReportStore mutates the report a job is processing.
type ReportStore interface {
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	UpdateReportContent(ctx context.Context, id uuid.UUID, title, description, timeline, impact *string) error
	RejectReport(ctx context.Context, id uuid.UUID, reason string) error
	SetReportCluster(ctx context.Context, reportID, clusterID uuid.UUID) error
	LookupCategoryBySlug(ctx context.Context, slug string) (*uuid.UUID, error)
	UpsertCategoryAssignment(ctx context.Context, reportID, categoryID uuid.UUID, severity models.Severity) error
	UpsertTag(ctx context.Context, reportID uuid.UUID, tag models.TagType) error
	SaveLocation(ctx context.Context, loc *models.ReportLocation) error
}

// ConversationStore reads the source conversation. Read-only apart from the
// attachment copy, which links files to the report by opaque id.
type ConversationStore interface {
	GetMessages(ctx context.Context, threadID uuid.UUID) ([]models.ChatMessage, error)
	CopyAttachments(ctx context.Context, threadID, reportID uuid.UUID) (int64, error)
}

// Subject is what a job points at: the report to fill in and the
// conversation it came from.
type Subject struct {
	ReportID uuid.UUID
	ThreadID uuid.UUID
}

// Kind resolves a queued job to its subject. One pipeline serves every job
// kind; a kind only knows how to find the conversation behind its subject.
type Kind interface {
	Name() string
	Subject(ctx context.Context, job models.ReportJob) (*Subject, error)
}

// ReportKind is the standard kind: the job's subject is a report whose
// thread id points at the citizen conversation.
type ReportKind struct {
	Reports ReportStore
}

func (k *ReportKind) Name() string { return "report" }

func (k *ReportKind) Subject(ctx context.Context, job models.ReportJob) (*Subject, error) {
	report, err := k.Reports.GetReport(ctx, job.ReportID)
	if err != nil {
		return nil, err
	}
	if report.ThreadID == nil {
		return nil, pipeline.NotFoundf("report %s has no conversation reference", report.ID)
	}
	return &Subject{ReportID: report.ID, ThreadID: *report.ThreadID}, nil
}

// Processor drives the job state machine. One instance per process; several
// processes may share the queue because claiming is atomic.
type Processor struct {
	Jobs          JobStore
	Reports       ReportStore
	Conversations ConversationStore
	Extractor     ai.Extractor
	Geocoder      geocode.Geocoder
	Regions       *regions.Resolver
	Clusters      *cluster.Index
	Kind          Kind
	Logger        zerolog.Logger

	Interval      time.Duration
	BatchSize     int
	MaxRetries    int
	MinConfidence float64
	CallTimeout   time.Duration
	LeaseTimeout  time.Duration // requeue processing jobs older than this; 0 disables
}

// Run polls until the context is cancelled. An immediate first pass picks up
// whatever queued while the process was down.
func (p *Processor) Run(ctx context.Context) {
	p.Logger.Info().
		Dur("interval", p.Interval).
		Int("batch_size", p.BatchSize).
		Msg("report processor started")

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		if n, err := p.ProcessBatch(ctx); err != nil {
			p.Logger.Error().Err(err).Msg("batch processing failed")
		} else if n > 0 {
			p.Logger.Info().Int("jobs", n).Msg("batch processed")
		}

		select {
		case <-ctx.Done():
			p.Logger.Info().Msg("report processor stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessBatch claims one batch and works through it sequentially, settling
// each job's state before moving to the next. Returns how many jobs were
// claimed. Claims abandoned by a dead worker are swept back onto the queue
// first, once their lease expires.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	if p.LeaseTimeout > 0 {
		if n, err := p.Jobs.RequeueStale(ctx, p.LeaseTimeout); err != nil {
			p.Logger.Error().Err(err).Msg("failed to requeue stale jobs")
		} else if n > 0 {
			p.Logger.Warn().Int64("jobs", n).Msg("stale processing jobs requeued")
		}
	}

	jobs, err := p.Jobs.ClaimPending(ctx, p.MaxRetries, p.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		p.runJob(ctx, job)
	}
	return len(jobs), nil
}

// runJob executes one attempt and maps its outcome onto job state: success
// completes, a permanent error fails immediately, anything else goes through
// retry bookkeeping.
func (p *Processor) runJob(ctx context.Context, job models.ReportJob) {
	logger := p.Logger.With().
		Str("job_id", job.ID.String()).
		Str("report_id", job.ReportID.String()).
		Str("kind", p.Kind.Name()).
		Logger()

	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	err := p.processJob(ctx, job, logger)
	if err == nil {
		if err := p.Jobs.MarkCompleted(ctx, job.ID); err != nil {
			logger.Error().Err(err).Msg("failed to mark job completed")
			return
		}
		telemetry.JobsCompleted.Inc()
		logger.Info().Msg("job completed")
		return
	}

	if pipeline.Permanent(err) {
		if markErr := p.Jobs.MarkFailedPermanently(ctx, job.ID, err.Error()); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark job failed")
			return
		}
		telemetry.JobsFailed.Inc()
		logger.Error().Err(err).Msg("job failed permanently")
		return
	}

	updated, markErr := p.Jobs.MarkFailed(ctx, job.ID, p.MaxRetries, err.Error())
	if markErr != nil {
		logger.Error().Err(markErr).Msg("failed to record job failure")
		return
	}
	if updated.Status == models.JobFailed {
		telemetry.JobsFailed.Inc()
		logger.Error().Err(err).Int("retries", updated.RetryCount).Msg("job failed after final retry")
		return
	}
	telemetry.JobsRetried.Inc()
	logger.Warn().Err(err).Int("retries", updated.RetryCount).Msg("job attempt failed, resubmitted")
}

func (p *Processor) processJob(ctx context.Context, job models.ReportJob, logger zerolog.Logger) error {
	subject, err := p.Kind.Subject(ctx, job)
	if err != nil {
		return err
	}

	// Low-confidence submissions are rejected, not failed: the pipeline did
	// its work, the quality gate just said no. Extraction never runs.
	if job.Confidence < p.MinConfidence {
		reason := fmt.Sprintf("confidence %.2f below threshold %.2f", job.Confidence, p.MinConfidence)
		if err := p.Reports.RejectReport(ctx, subject.ReportID, reason); err != nil {
			return err
		}
		telemetry.ReportsRejected.Inc()
		logger.Info().Float64("confidence", job.Confidence).Msg("report rejected by confidence gate")
		return nil
	}

	messages, err := p.Conversations.GetMessages(ctx, subject.ThreadID)
	if err != nil {
		return err
	}

	extractCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	extracted, err := p.Extractor.Extract(extractCtx, messages)
	cancel()
	if err != nil {
		return err
	}

	title := extracted.Title
	description := extracted.Description
	if err := p.Reports.UpdateReportContent(ctx, subject.ReportID, &title, &description, extracted.Timeline, extracted.Impact); err != nil {
		return err
	}

	for _, cat := range extracted.Categories {
		categoryID, err := p.Reports.LookupCategoryBySlug(ctx, cat.Slug)
		if err != nil {
			return err
		}
		if categoryID == nil {
			logger.Warn().Str("slug", cat.Slug).Msg("unknown category slug, skipping")
			continue
		}
		if err := p.Reports.UpsertCategoryAssignment(ctx, subject.ReportID, *categoryID, cat.Severity); err != nil {
			return err
		}
	}
	if extracted.TagType != nil {
		if err := p.Reports.UpsertTag(ctx, subject.ReportID, *extracted.TagType); err != nil {
			return err
		}
	}

	if extracted.HasLocation() {
		if err := p.resolveLocation(ctx, subject.ReportID, extracted, logger); err != nil {
			return err
		}
	}

	if _, err := p.Conversations.CopyAttachments(ctx, subject.ThreadID, subject.ReportID); err != nil {
		return err
	}
	return nil
}

// resolveLocation runs the geocoding cascade, the region resolution gated by
// the achieved precision, persists the location, and clusters the point when
// coordinates came back.
func (p *Processor) resolveLocation(ctx context.Context, reportID uuid.UUID, extracted *models.ExtractedReport, logger zerolog.Logger) error {
	hints := geocode.Hints{
		Street:   extracted.LocationStreet,
		Village:  extracted.LocationVillage,
		District: extracted.LocationDistrict,
		Regency:  extracted.LocationRegency,
		Province: extracted.LocationProvince,
		Raw:      extracted.LocationRaw,
	}

	geoCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	match, err := geocode.Cascade(geoCtx, p.Geocoder, hints, logger)
	cancel()
	if err != nil {
		return err
	}

	loc := &models.ReportLocation{
		ReportID:        reportID,
		RawInput:        extracted.RawLocationInput(),
		GeocodingSource: models.SourceFallback,
	}
	if name := extracted.DisplayName(); name != "" {
		loc.DisplayName = &name
	}

	names := regions.Names{
		Province: extracted.LocationProvince,
		Regency:  extracted.LocationRegency,
		District: extracted.LocationDistrict,
		Village:  extracted.LocationVillage,
	}
	level := geocode.LevelFree

	if match != nil {
		telemetry.GeocodeAttempts.WithLabelValues("matched").Inc()
		telemetry.GeocodeMatched.WithLabelValues(match.Level.String()).Inc()
		level = match.Level
		res := match.Result
		loc.Lat = &res.Lat
		loc.Lon = &res.Lon
		loc.DisplayName = &res.DisplayName
		loc.OSMID = res.OSMID
		loc.OSMType = res.OSMType
		loc.BoundingBox = res.BoundingBox
		loc.GeocodingSource = models.SourceNominatim
		loc.GeocodingScore = res.Importance
		loc.Road = res.Address.Road
		loc.Neighbourhood = res.Address.Neighbourhood
		loc.Suburb = res.Address.Suburb
		loc.City = res.Address.CityDisplay()
		loc.State = res.Address.State
		loc.Postcode = res.Address.Postcode
		loc.CountryCode = res.Address.CountryCode

		// The citizen's stated names win; the geocoder's components only
		// fill levels the extractor left empty. OSM address data is
		// inconsistent across Indonesia (Jawa: county=kabupaten,
		// municipality=kecamatan; Sumatera: region=kabupaten, no kecamatan
		// field), so it serves as a fallback, never an override.
		if names.Village == nil {
			names.Village = res.Address.GetVillage()
		}
		if names.District == nil {
			names.District = res.Address.District()
		}
		if names.Regency == nil {
			names.Regency = res.Address.Regency()
		}
	} else {
		telemetry.GeocodeAttempts.WithLabelValues("no_match").Inc()
	}

	resolved, err := p.Regions.Resolve(ctx, names, level)
	if err != nil {
		return err
	}
	loc.ProvinceID = resolved.ProvinceID
	loc.RegencyID = resolved.RegencyID
	loc.DistrictID = resolved.DistrictID
	loc.VillageID = resolved.VillageID

	if err := p.Reports.SaveLocation(ctx, loc); err != nil {
		return err
	}

	if loc.Lat != nil && loc.Lon != nil {
		name := extracted.DisplayName()
		if name == "" && loc.DisplayName != nil {
			name = *loc.DisplayName
		}
		clusterRow, created, err := p.Clusters.Assign(ctx, name, *loc.Lat, *loc.Lon)
		if err != nil {
			return err
		}
		if created {
			telemetry.ClustersCreated.Inc()
		}
		if err := p.Reports.SetReportCluster(ctx, reportID, clusterRow.ID); err != nil {
			return err
		}
	}
	return nil
}
