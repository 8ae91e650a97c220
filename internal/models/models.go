package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobSubmitted  JobStatus = "submitted"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type ReportStatus string

const (
	ReportDraft      ReportStatus = "draft"
	ReportPending    ReportStatus = "pending"
	ReportVerified   ReportStatus = "verified"
	ReportInProgress ReportStatus = "in_progress"
	ReportResolved   ReportStatus = "resolved"
	ReportRejected   ReportStatus = "rejected"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type TagType string

const (
	TagReport       TagType = "report"
	TagProposal     TagType = "proposal"
	TagComplaint    TagType = "complaint"
	TagInquiry      TagType = "inquiry"
	TagAppreciation TagType = "appreciation"
)

type GeocodingSource string

const (
	SourceNominatim GeocodingSource = "nominatim"
	SourceManual    GeocodingSource = "manual"
	SourceFallback  GeocodingSource = "fallback"
)

type ClusterStatus string

const (
	ClusterActive     ClusterStatus = "active"
	ClusterMonitoring ClusterStatus = "monitoring"
	ClusterResolved   ClusterStatus = "resolved"
	ClusterArchived   ClusterStatus = "archived"
)

// ReportJob is one row in the background processing queue. Jobs are created
// when a report is submitted and only ever mutated by the worker.
type ReportJob struct {
	ID            uuid.UUID  `json:"id"`
	ReportID      uuid.UUID  `json:"report_id"`
	Status        JobStatus  `json:"status"`
	Confidence    float64    `json:"confidence_score"`
	RetryCount    int        `json:"retry_count"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// NextJobStatusAfterFailure computes the transition applied by a failed
// attempt: the job stays submitted (eligible for a later batch) until the
// retry counter reaches the limit, at which point it fails permanently.
func NextJobStatusAfterFailure(newRetryCount, maxRetries int) JobStatus {
	if newRetryCount >= maxRetries {
		return JobFailed
	}
	return JobSubmitted
}

type Report struct {
	ID              uuid.UUID    `json:"id"`
	ReferenceNumber *string      `json:"reference_number,omitempty"`
	ThreadID        *uuid.UUID   `json:"thread_id,omitempty"`
	ClusterID       *uuid.UUID   `json:"cluster_id,omitempty"`
	Title           *string      `json:"title,omitempty"`
	Description     *string      `json:"description,omitempty"`
	Timeline        *string      `json:"timeline,omitempty"`
	Impact          *string      `json:"impact,omitempty"`
	Status          ReportStatus `json:"status"`
	UserID          *string      `json:"user_id,omitempty"`
	Platform        *string      `json:"platform,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type CategoryAssignment struct {
	ReportID   uuid.UUID `json:"report_id"`
	CategoryID uuid.UUID `json:"category_id"`
	Severity   Severity  `json:"severity"`
}

type ReportLocation struct {
	ID              uuid.UUID       `json:"id"`
	ReportID        uuid.UUID       `json:"report_id"`
	RawInput        string          `json:"raw_input"`
	DisplayName     *string         `json:"display_name,omitempty"`
	Lat             *float64        `json:"lat,omitempty"`
	Lon             *float64        `json:"lon,omitempty"`
	OSMID           *int64          `json:"osm_id,omitempty"`
	OSMType         *string         `json:"osm_type,omitempty"`
	Road            *string         `json:"road,omitempty"`
	Neighbourhood   *string         `json:"neighbourhood,omitempty"`
	Suburb          *string         `json:"suburb,omitempty"`
	City            *string         `json:"city,omitempty"`
	State           *string         `json:"state,omitempty"`
	Postcode        *string         `json:"postcode,omitempty"`
	CountryCode     *string         `json:"country_code,omitempty"`
	BoundingBox     []float64       `json:"bounding_box,omitempty"`
	GeocodingSource GeocodingSource `json:"geocoding_source"`
	GeocodingScore  *float64        `json:"geocoding_score,omitempty"`
	ProvinceID      *uuid.UUID      `json:"province_id,omitempty"`
	RegencyID       *uuid.UUID      `json:"regency_id,omitempty"`
	DistrictID      *uuid.UUID      `json:"district_id,omitempty"`
	VillageID       *uuid.UUID      `json:"village_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ReportCluster struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	CenterLat    float64       `json:"center_lat"`
	CenterLon    float64       `json:"center_lon"`
	RadiusMeters int           `json:"radius_meters"`
	ReportCount  int           `json:"report_count"`
	Status       ClusterStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Region is one level of the static administrative catalog
// (province, regency, district or village). ParentID is nil for provinces.
type Region struct {
	ID       uuid.UUID  `json:"id"`
	Code     string     `json:"code"`
	Name     string     `json:"name"`
	Level    string     `json:"level"`
	Lat      *float64   `json:"lat,omitempty"`
	Lng      *float64   `json:"lng,omitempty"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

// ChatMessage is a single turn of a citizen conversation.
type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
