// Package pipeline defines the core types and contracts of the scraping and
// reconciliation pipeline: scraped records, match decisions, the storage
// surface, and the driver loop that moves records from a source adapter
// through matching into storage.
package pipeline

import (
	"context"
	"time"
)

// CompanyRecord is one legal entity as externally observed. CorporateNumber,
// the 13-digit government identifier, is the stable natural key; once known
// it is the only join key, and name/address matching is a fallback for
// records where no number is on file yet.
type CompanyRecord struct {
	ID                 string
	CorporateNumber    string
	Name               string
	NormalizedName     string
	Address            string
	NormalizedAddress  string
	IsActive           bool
	IsExpandedCoverage bool
	PensionOfficeName  string
	CoverageStartDate  *time.Time
	SourceURL          string
}

// Observation is one point of a company's insured-count time series. The
// pair (company, ObservedDate) is unique; re-scraping the same month upserts
// rather than duplicates.
type Observation struct {
	Count        int
	ObservedDate time.Time
}

// Candidate is what a source adapter yields for one work item: the company
// as the source renders it, plus at most one observation and, for the job
// board, the listing that carried the company data.
type Candidate struct {
	Company     CompanyRecord
	Observation *Observation
	Listing     *JobListing
}

// MatchKind enumerates reconciliation outcomes.
type MatchKind int

// Match decision kinds.
const (
	MatchNewCompany MatchKind = iota
	MatchUpdateExisting
	MatchDuplicateSkip
)

// MatchDecision is the matcher's verdict for one candidate. It exists only
// within a run and is never persisted.
type MatchDecision struct {
	Kind       MatchKind
	ExistingID string
	Reason     string
}

// Outcome describes what the coordinator did with a record.
type Outcome string

// Apply outcomes, tallied into the run summary.
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// Store is the persistence surface for companies and observations. All
// methods are callable inside one ambient transaction per record via WithTx.
type Store interface {
	// FindCompanyByCorporateNumber returns nil when no company has the number.
	FindCompanyByCorporateNumber(ctx context.Context, number string) (*CompanyRecord, error)
	FindCompaniesByNormalizedName(ctx context.Context, name string) ([]CompanyRecord, error)
	// UpsertCompany inserts the company or, on a corporate-number conflict,
	// updates the mutable fields, returning the row id either way. Records
	// without a corporate number are inserted unconditionally.
	UpsertCompany(ctx context.Context, rec CompanyRecord) (string, error)
	// UpdateCompanyFields updates only the mutable fields (address, active
	// flag, url, pension office, coverage dates); the creation key and
	// timestamp stay untouched.
	UpdateCompanyFields(ctx context.Context, id string, rec CompanyRecord) error
	// UpsertObservation overwrites the count for (companyID, observed) on
	// conflict, never duplicating a point.
	UpsertObservation(ctx context.Context, companyID string, count int, observed time.Time) error
	// WithTx runs fn inside a transaction; fn's store writes are atomic.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// WorkLister builds the monthly work list: companies with no observation at
// or after the given date, in stable id order for resumable batches.
type WorkLister interface {
	CompaniesMissingObservation(ctx context.Context, since time.Time, offset, limit int) ([]CompanyRecord, error)
}

// ProfileCompany is a row scraped from a company-profile site, awaiting a
// corporate-number link into the main registry.
type ProfileCompany struct {
	ID        int64
	Source    string
	SourceKey int64
	Name      string
	Address   string
	URL       string
	CompanyID string
}

// ProfileStore persists profile-site rows and their links.
type ProfileStore interface {
	UpsertProfileCompany(ctx context.Context, pc ProfileCompany) (int64, error)
	UnlinkedProfileCompanies(ctx context.Context, source string, limit int) ([]ProfileCompany, error)
	LinkProfileCompany(ctx context.Context, profileID int64, companyID string) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
