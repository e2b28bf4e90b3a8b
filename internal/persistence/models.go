// Package persistence implements the scan state machine and idempotent
// upserts over the publishers/extensions/scan_history/blocklist/iocs/
// static_findings schema named in SPEC_FULL.md §6.
package persistence

import (
	"time"

	"github.com/google/uuid"
)

// ScanState is the extensions.scan_state / latest_state enum, named
// verbatim after spec.md's state diagram (SPEC_FULL §3.1 resolved this
// against original_source/'s larger, partly out-of-scope state set).
type ScanState string

const (
	ScanStateQueued         ScanState = "QUEUED"
	ScanStateDownloading    ScanState = "DOWNLOADING"
	ScanStateStaticScanning ScanState = "STATIC_SCANNING"
	ScanStateStaticScanned  ScanState = "STATIC_SCANNED"
	ScanStateHeavyweight    ScanState = "HEAVYWEIGHT"
	ScanStateClean          ScanState = "CLEAN"
	ScanStateFlagged        ScanState = "FLAGGED"
)

// Publisher mirrors the publishers table.
type Publisher struct {
	ID               uuid.UUID
	PublisherID      string
	PublisherName    string
	DisplayName      string
	Domain           string
	IsDomainVerified bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Extension mirrors the extensions table.
type Extension struct {
	ID            uuid.UUID
	ExtensionID   string
	Version       string
	DisplayName   string
	ShortDesc     string
	VSIXHashSHA256 string
	PublishedDate *time.Time
	LastUpdated   *time.Time
	InstallCount  int64
	AverageRating float64
	PublisherID   uuid.UUID
	ScanState     ScanState
	LatestState   ScanState
	RiskScore     *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ScanHistory mirrors one row of scan_history.
type ScanHistory struct {
	ID            uuid.UUID
	ExtensionDBID uuid.UUID
	ScanType      string
	StartedAt     time.Time
	CompletedAt   *time.Time
	AIVibeScore      *float64
	StaticScore      *float64
	BehavioralScore  *float64
	TrustScore       *float64
	CompositeScore   *float64
	RiskScore        *float64
	FindingsJSON     string
	RawAIResponse    string
}

// BlocklistEntry mirrors one row of blocklist.
type BlocklistEntry struct {
	ID             uuid.UUID
	ExtensionID    string
	RemovalDate    *time.Time
	RemovalType    string
	RemovalTypeRaw string
	SyncedAt       time.Time
}

// IOC mirrors one row of iocs.
type IOC struct {
	ID            uuid.UUID
	ScanHistoryID uuid.UUID
	IOCType       string
	IOCValue      string
	Context       string
	VTDetection   *int
	DiscoveredAt  time.Time
}

// StaticFinding mirrors one row of static_findings.
type StaticFinding struct {
	ID            uuid.UUID
	ScanHistoryID uuid.UUID
	FindingType   string
	Severity      string
	FilePath      string
	LineNumber    *int
	Description   string
	RawMatch      string
	CreatedAt     time.Time
}
