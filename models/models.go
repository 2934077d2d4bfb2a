package models

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Provider identifies an external system we integrate with.
type Provider string

const (
	ProviderQuickBooks       Provider = "quickbooks"
	ProviderXero             Provider = "xero"
	ProviderSage             Provider = "sage"
	ProviderFreshBooks       Provider = "freshbooks"
	ProviderWave             Provider = "wave"
	ProviderWorkday          Provider = "workday"
	ProviderBambooHR         Provider = "bamboohr"
	ProviderADP              Provider = "adp"
	ProviderSunLife          Provider = "sunlife"
	ProviderManulife         Provider = "manulife"
	ProviderGreenShield      Provider = "greenshield"
	ProviderCanadaLife       Provider = "canadalife"
	ProviderSlack            Provider = "slack"
	ProviderTeams            Provider = "teams"
	ProviderLinkedInLearning Provider = "linkedin_learning"
	ProviderSharePoint       Provider = "sharepoint"
)

// IntegrationType groups providers by the business function they serve.
type IntegrationType string

const (
	TypeAccounting    IntegrationType = "accounting"
	TypeHRIS          IntegrationType = "hris"
	TypeInsurance     IntegrationType = "insurance"
	TypeCommunication IntegrationType = "communication"
	TypeLMS           IntegrationType = "lms"
	TypeDocuments     IntegrationType = "documents"
)

type SyncType string

const (
	SyncTypeFull        SyncType = "full"
	SyncTypeIncremental SyncType = "incremental"
	SyncTypeRealTime    SyncType = "real_time"
)

type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

type WebhookStatus string

const (
	WebhookStatusReceived   WebhookStatus = "received"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusFailed     WebhookStatus = "failed"
	WebhookStatusIgnored    WebhookStatus = "ignored"
)

// IntegrationConfig is the persisted per (organization, provider)
// configuration. Credentials are an opaque blob from the point of view
// of everything except the concrete adapter.
type IntegrationConfig struct {
	ID          string            `json:"id"`
	OrgID       string            `json:"org_id"`
	Provider    Provider          `json:"provider"`
	Credentials map[string]string `json:"-"`
	Settings    map[string]string `json:"settings"`
	Enabled     bool              `json:"enabled"`
	WebhookURL  string            `json:"webhook_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SyncJob is a declarative recurring sync schedule.
type SyncJob struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Provider  Provider  `json:"provider"`
	SyncType  SyncType  `json:"sync_type"`
	CronExpr  string    `json:"cron_expr"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key is the scheduling identity of the job: one recurring task may be
// registered per key at a time.
func (j *SyncJob) Key() string {
	return j.OrgID + ":" + string(j.Provider) + ":" + string(j.SyncType)
}

// SyncLogEntry is the audit row for a single sync execution.
type SyncLogEntry struct {
	ID               string     `json:"id"`
	OrgID            string     `json:"org_id"`
	Provider         Provider   `json:"provider"`
	SyncType         SyncType   `json:"sync_type"`
	Status           SyncStatus `json:"status"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsCreated   int        `json:"records_created"`
	RecordsUpdated   int        `json:"records_updated"`
	RecordsFailed    int        `json:"records_failed"`
	Cursor           string     `json:"cursor,omitempty"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// WebhookEvent is an inbound external-system event. Its ID is derived
// from the raw payload so that redeliveries of identical payloads
// collapse onto one row.
type WebhookEvent struct {
	ID          string        `json:"id"`
	OrgID       string        `json:"org_id"`
	Provider    Provider      `json:"provider"`
	EventType   string        `json:"event_type"`
	Status      WebhookStatus `json:"status"`
	Payload     []byte        `json:"-"`
	Signature   string        `json:"-"`
	Verified    bool          `json:"verified"`
	Attempts    int           `json:"attempts"`
	Error       string        `json:"error,omitempty"`
	ReceivedAt  time.Time     `json:"received_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}

// SyncOptions control a single sync run. Since and Cursor are left
// empty by callers that want the engine to resolve them from the most
// recent successful run.
type SyncOptions struct {
	Type     SyncType   `json:"type"`
	Entities []string   `json:"entities,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Cursor   string     `json:"cursor,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	DryRun   bool       `json:"dry_run,omitempty"`
}

// SyncResult is what an adapter reports back from a sync run. Partial
// per-entity failures are counted and collected, not thrown.
type SyncResult struct {
	Success          bool     `json:"success"`
	RecordsProcessed int      `json:"records_processed"`
	RecordsCreated   int      `json:"records_created"`
	RecordsUpdated   int      `json:"records_updated"`
	RecordsFailed    int      `json:"records_failed"`
	Cursor           string   `json:"cursor,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency_ms"`
	LastError string        `json:"last_error,omitempty"`
}

// ExternalRecord is the normalized upsert target adapters write
// synced entities into, keyed by the external system's own identifier
// for later reconciliation.
type ExternalRecord struct {
	OrgID      string         `json:"org_id"`
	Provider   Provider       `json:"provider"`
	Entity     string         `json:"entity"`
	ExternalID string         `json:"external_id"`
	Data       map[string]any `json:"data"`
	SyncedAt   time.Time      `json:"synced_at"`
}
