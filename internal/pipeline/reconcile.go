package pipeline

import (
	"context"
	"fmt"
)

// Matcher decides whether a freshly scraped record corresponds to a stored
// company. Tie-break order is deliberate: the registry-issued corporate
// number is authoritative; a normalized name alone is trusted only when it
// is unambiguous; the normalized address disambiguates as a last resort; and
// true ambiguity is surfaced as a skip, never guessed.
type Matcher struct {
	store Store
}

// NewMatcher builds a Matcher over the given store.
func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// Reconcile resolves candidate to new, update-existing, or duplicate-skip.
func (m *Matcher) Reconcile(ctx context.Context, candidate CompanyRecord) (MatchDecision, error) {
	if candidate.CorporateNumber != "" {
		existing, err := m.store.FindCompanyByCorporateNumber(ctx, candidate.CorporateNumber)
		if err != nil {
			return MatchDecision{}, fmt.Errorf("lookup by corporate number: %w", err)
		}
		if existing != nil {
			return MatchDecision{Kind: MatchUpdateExisting, ExistingID: existing.ID}, nil
		}
	}

	if candidate.Name == "" {
		return MatchDecision{Kind: MatchDuplicateSkip, Reason: "missing name"}, nil
	}

	matches, err := m.store.FindCompaniesByNormalizedName(ctx, candidate.NormalizedName)
	if err != nil {
		return MatchDecision{}, fmt.Errorf("lookup by normalized name: %w", err)
	}

	switch len(matches) {
	case 0:
		return MatchDecision{Kind: MatchNewCompany}, nil
	case 1:
		// Single exact name match short-circuits the address comparison.
		return MatchDecision{Kind: MatchUpdateExisting, ExistingID: matches[0].ID}, nil
	}

	var addressHits []CompanyRecord
	if candidate.NormalizedAddress != "" {
		for _, m := range matches {
			if m.NormalizedAddress == candidate.NormalizedAddress {
				addressHits = append(addressHits, m)
			}
		}
	}
	if len(addressHits) == 1 {
		return MatchDecision{Kind: MatchUpdateExisting, ExistingID: addressHits[0].ID}, nil
	}
	return MatchDecision{Kind: MatchDuplicateSkip, Reason: "ambiguous"}, nil
}
