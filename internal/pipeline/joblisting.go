package pipeline

import (
	"context"
	"time"
)

// JobListing is one posting scraped from the public job board, keyed by the
// board's own listing number. Most fields are optional on the board and stay
// zero here; numeric ranges use pointers so "not stated" and "zero" remain
// distinguishable.
type JobListing struct {
	JobNumber       string
	CorporateNumber string

	ReceptionDate  *time.Time
	ExpirationDate *time.Time
	SecurityOffice string
	JobCategory    string
	Industry       string

	CompanyName       string
	CompanyNameKana   string
	CompanyPostalCode string
	CompanyAddress    string
	CompanyWebsite    string

	Title            string
	Description      string
	EmploymentType   string
	EmploymentPeriod string
	IsDispatch       bool

	WorkPostalCode string
	WorkAddress    string
	NearestStation string
	CommuteMinutes *int
	SmokingPolicy  string
	CarCommute     bool

	BaseSalaryMin    *int
	BaseSalaryMax    *int
	FixedOvertimePay *int
	SalaryType       string
	BonusSystem      bool
	SalaryRaise      bool

	WorkHoursStart   string
	WorkHoursEnd     string
	BreakMinutes     *int
	OvertimeAvgHours *int
	AnnualHolidays   *int
	Holidays         string
	Insurance        string

	RetirementSystem bool
	RetirementAge    *int
	RehireSystem     bool

	AgeLimitMin        *int
	AgeLimitMax        *int
	AgeLimitReason     string
	RequiredExperience string
	RequiredLicenses   string
	HiringCount        *int
	SelectionMethods   string
	ApplicationMethod  string
}

// JobListingStore persists job listings, overwriting on job-number conflict.
type JobListingStore interface {
	UpsertJobListing(ctx context.Context, listing JobListing) error
}
