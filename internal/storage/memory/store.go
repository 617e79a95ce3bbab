// Package memory provides an in-memory Store for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

type observationKey struct {
	companyID string
	date      string
}

// Store keeps companies and observations in maps. WithTx runs the function
// against the store directly; there is no rollback, which is fine for the
// happy-path tests and dry runs this exists for.
type Store struct {
	mu           sync.Mutex
	companies    map[string]pipeline.CompanyRecord
	createdOrder []string
	observations map[observationKey]int
	profiles     map[int64]pipeline.ProfileCompany
	nextProfile  int64
	listings     map[string]pipeline.JobListing
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		companies:    make(map[string]pipeline.CompanyRecord),
		observations: make(map[observationKey]int),
		profiles:     make(map[int64]pipeline.ProfileCompany),
		listings:     make(map[string]pipeline.JobListing),
	}
}

// FindCompanyByCorporateNumber implements pipeline.Store.
func (s *Store) FindCompanyByCorporateNumber(_ context.Context, number string) (*pipeline.CompanyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if number == "" {
		return nil, nil
	}
	for _, rec := range s.companies {
		if rec.CorporateNumber == number {
			cp := rec
			return &cp, nil
		}
	}
	return nil, nil
}

// FindCompaniesByNormalizedName implements pipeline.Store.
func (s *Store) FindCompaniesByNormalizedName(_ context.Context, name string) ([]pipeline.CompanyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pipeline.CompanyRecord
	for _, id := range s.createdOrder {
		if rec := s.companies[id]; rec.NormalizedName == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UpsertCompany implements pipeline.Store.
func (s *Store) UpsertCompany(_ context.Context, rec pipeline.CompanyRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CorporateNumber != "" {
		for id, existing := range s.companies {
			if existing.CorporateNumber == rec.CorporateNumber {
				s.companies[id] = mergeMutable(existing, rec)
				return id, nil
			}
		}
	}
	id := uuid.NewString()
	rec.ID = id
	s.companies[id] = rec
	s.createdOrder = append(s.createdOrder, id)
	return id, nil
}

// UpdateCompanyFields implements pipeline.Store.
func (s *Store) UpdateCompanyFields(_ context.Context, id string, rec pipeline.CompanyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.companies[id]
	if !ok {
		return pipeline.ErrNotFound
	}
	s.companies[id] = mergeMutable(existing, rec)
	return nil
}

func mergeMutable(existing, rec pipeline.CompanyRecord) pipeline.CompanyRecord {
	existing.Name = rec.Name
	existing.NormalizedName = rec.NormalizedName
	existing.Address = rec.Address
	existing.NormalizedAddress = rec.NormalizedAddress
	existing.IsActive = rec.IsActive
	existing.IsExpandedCoverage = rec.IsExpandedCoverage
	existing.PensionOfficeName = rec.PensionOfficeName
	if rec.CoverageStartDate != nil {
		existing.CoverageStartDate = rec.CoverageStartDate
	}
	if rec.SourceURL != "" {
		existing.SourceURL = rec.SourceURL
	}
	// The corporate number is filled in once and never overwritten.
	if existing.CorporateNumber == "" {
		existing.CorporateNumber = rec.CorporateNumber
	}
	return existing
}

// UpsertObservation implements pipeline.Store.
func (s *Store) UpsertObservation(_ context.Context, companyID string, count int, observed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[companyID]; !ok {
		return pipeline.ErrNotFound
	}
	s.observations[observationKey{companyID, observed.Format("2006-01-02")}] = count
	return nil
}

// WithTx implements pipeline.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx pipeline.Store) error) error {
	return fn(ctx, s)
}

// CompaniesMissingObservation implements pipeline.WorkLister.
func (s *Store) CompaniesMissingObservation(_ context.Context, since time.Time, offset, limit int) ([]pipeline.CompanyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pipeline.CompanyRecord
	for _, id := range s.createdOrder {
		if s.hasObservationSince(id, since) {
			continue
		}
		out = append(out, s.companies[id])
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) hasObservationSince(companyID string, since time.Time) bool {
	cutoff := since.Format("2006-01-02")
	for key := range s.observations {
		if key.companyID == companyID && key.date >= cutoff {
			return true
		}
	}
	return false
}

// UpsertProfileCompany implements pipeline.ProfileStore, keyed on
// (source, source key).
func (s *Store) UpsertProfileCompany(_ context.Context, pc pipeline.ProfileCompany) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.profiles {
		if existing.Source == pc.Source && existing.SourceKey == pc.SourceKey {
			pc.ID = id
			pc.CompanyID = existing.CompanyID
			s.profiles[id] = pc
			return id, nil
		}
	}
	s.nextProfile++
	pc.ID = s.nextProfile
	s.profiles[pc.ID] = pc
	return pc.ID, nil
}

// UnlinkedProfileCompanies implements pipeline.ProfileStore.
func (s *Store) UnlinkedProfileCompanies(_ context.Context, source string, limit int) ([]pipeline.ProfileCompany, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pipeline.ProfileCompany
	for _, pc := range s.profiles {
		if pc.Source == source && pc.CompanyID == "" {
			out = append(out, pc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LinkProfileCompany implements pipeline.ProfileStore.
func (s *Store) LinkProfileCompany(_ context.Context, profileID int64, companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.profiles[profileID]
	if !ok {
		return pipeline.ErrNotFound
	}
	pc.CompanyID = companyID
	s.profiles[profileID] = pc
	return nil
}

// UpsertJobListing implements pipeline.JobListingStore, keyed on job number.
func (s *Store) UpsertJobListing(_ context.Context, listing pipeline.JobListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.JobNumber] = listing
	return nil
}

// JobListing returns the stored listing for a job number; test helper.
func (s *Store) JobListing(jobNumber string) (pipeline.JobListing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[jobNumber]
	return listing, ok
}

// ObservationCount reports the stored count for (companyID, date); test
// helper.
func (s *Store) ObservationCount(companyID string, observed time.Time) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.observations[observationKey{companyID, observed.Format("2006-01-02")}]
	return count, ok
}

// CompanyCount reports how many companies are stored; test helper.
func (s *Store) CompanyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.companies)
}

// ObservationTotal reports how many observation points exist; test helper.
func (s *Store) ObservationTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observations)
}
