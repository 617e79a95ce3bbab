package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

var companyRowColumns = []string{
	"id", "corporate_number", "name", "normalized_name", "address",
	"normalized_address", "is_active", "is_expanded_coverage",
	"pension_office", "coverage_start_date", "url",
}

func testRecord() pipeline.CompanyRecord {
	start := time.Date(2009, 4, 1, 0, 0, 0, 0, time.UTC)
	return pipeline.CompanyRecord{
		CorporateNumber:   "1234567890123",
		Name:              "テスト株式会社",
		NormalizedName:    "テスト",
		Address:           "東京都千代田区丸の内1-2-3",
		NormalizedAddress: "東京都千代田区丸の内1-2-3",
		IsActive:          true,
		PensionOfficeName: "千代田年金事務所",
		CoverageStartDate: &start,
		SourceURL:         "https://example.co.jp",
	}
}

func TestUpsertCompanyConflictsOnCorporateNumber(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	rec := testRecord()
	office := rec.PensionOfficeName
	url := rec.SourceURL
	mock.ExpectQuery(`INSERT INTO companies .+ ON CONFLICT \(corporate_number\) DO UPDATE SET`).
		WithArgs(
			rec.CorporateNumber, rec.Name, rec.NormalizedName, rec.Address, rec.NormalizedAddress,
			rec.IsActive, rec.IsExpandedCoverage, &office, rec.CoverageStartDate, &url,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("uuid-1"))

	id, err := store.UpsertCompany(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "uuid-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCompanyWithoutNumberInsertsPlainRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	rec := pipeline.CompanyRecord{Name: "名無し商店", NormalizedName: "名無し商店", IsActive: true}
	mock.ExpectQuery(`INSERT INTO companies`).
		WithArgs(
			rec.Name, rec.NormalizedName, rec.Address, rec.NormalizedAddress,
			rec.IsActive, rec.IsExpandedCoverage, (*string)(nil), rec.CoverageStartDate, (*string)(nil),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("uuid-2"))

	id, err := store.UpsertCompany(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "uuid-2", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCompanyByCorporateNumberAbsentIsNil(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .+ FROM companies\s+WHERE corporate_number = \$1`).
		WithArgs("9999999999999").
		WillReturnRows(pgxmock.NewRows(companyRowColumns))

	rec, err := store.FindCompanyByCorporateNumber(context.Background(), "9999999999999")
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCompanyByCorporateNumberEmptyKeySkipsQuery(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	rec, err := store.FindCompanyByCorporateNumber(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertObservationConflictsOnCompanyAndDate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	observed := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO insured_counts .+ ON CONFLICT \(company_id, count_date\) DO UPDATE SET`).
		WithArgs("uuid-1", 42, observed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.UpsertObservation(context.Background(), "uuid-1", 42, observed)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCompanyFieldsMissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	rec := testRecord()
	mock.ExpectExec(`UPDATE companies SET`).
		WithArgs(
			"uuid-gone", rec.CorporateNumber, rec.Name, rec.NormalizedName,
			rec.Address, rec.NormalizedAddress, rec.IsActive, rec.IsExpandedCoverage,
			rec.PensionOfficeName, rec.CoverageStartDate, rec.SourceURL,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateCompanyFields(context.Background(), "uuid-gone", rec)
	require.ErrorIs(t, err, pipeline.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	observed := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO insured_counts`).
		WithArgs("uuid-1", 42, observed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = store.WithTx(context.Background(), func(ctx context.Context, tx pipeline.Store) error {
		return tx.UpsertObservation(ctx, "uuid-1", 42, observed)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	boom := errors.New("constraint violated")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = store.WithTx(context.Background(), func(context.Context, pipeline.Store) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompaniesMissingObservationQuery(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(companyRowColumns).
		AddRow("uuid-1", "1234567890123", "テスト株式会社", "テスト", "", "", true, false, "", (*time.Time)(nil), "")
	mock.ExpectQuery(`corporate_number IS NOT NULL AND NOT EXISTS`).
		WithArgs(since, 0, 100).
		WillReturnRows(rows)

	out, err := store.CompaniesMissingObservation(context.Background(), since, 0, 100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "1234567890123", out[0].CorporateNumber)
	require.Nil(t, out[0].CoverageStartDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfileCompanyAndLink(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO profile_companies .+ ON CONFLICT \(source, source_key\) DO UPDATE SET`).
		WithArgs("green", int64(42), "テスト株式会社", "東京都", "https://example.co.jp").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.UpsertProfileCompany(context.Background(), pipeline.ProfileCompany{
		Source:    "green",
		SourceKey: 42,
		Name:      "テスト株式会社",
		Address:   "東京都",
		URL:       "https://example.co.jp",
	})
	require.NoError(t, err)
	require.EqualValues(t, 7, id)

	mock.ExpectExec(`UPDATE profile_companies SET company_id`).
		WithArgs(int64(7), "uuid-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.LinkProfileCompany(context.Background(), 7, "uuid-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertJobListingShape(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCompanyStoreWithPool(mock)
	require.NoError(t, err)

	listing := pipeline.JobListing{
		JobNumber:       "1301012345678",
		CorporateNumber: "1234567890123",
		CompanyName:     "テスト株式会社",
		Title:           "ソフトウェア開発技術者",
	}
	mock.ExpectExec(`INSERT INTO job_listings .+ ON CONFLICT \(job_number\) DO UPDATE SET`).
		WithArgs(
			listing.JobNumber, listing.CorporateNumber, listing.ReceptionDate, listing.ExpirationDate,
			listing.SecurityOffice, listing.JobCategory, listing.Industry,
			listing.CompanyName, listing.CompanyNameKana, listing.CompanyPostalCode, listing.CompanyAddress, listing.CompanyWebsite,
			listing.Title, listing.Description, listing.EmploymentType, listing.EmploymentPeriod, listing.IsDispatch,
			listing.WorkPostalCode, listing.WorkAddress, listing.NearestStation, listing.CommuteMinutes, listing.SmokingPolicy, listing.CarCommute,
			listing.BaseSalaryMin, listing.BaseSalaryMax, listing.FixedOvertimePay, listing.SalaryType, listing.BonusSystem, listing.SalaryRaise,
			listing.WorkHoursStart, listing.WorkHoursEnd, listing.BreakMinutes, listing.OvertimeAvgHours, listing.AnnualHolidays, listing.Holidays, listing.Insurance,
			listing.RetirementSystem, listing.RetirementAge, listing.RehireSystem,
			listing.AgeLimitMin, listing.AgeLimitMax, listing.AgeLimitReason,
			listing.RequiredExperience, listing.RequiredLicenses, listing.HiringCount, listing.SelectionMethods, listing.ApplicationMethod,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertJobListing(context.Background(), listing))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, store.UpsertJobListing(context.Background(), pipeline.JobListing{}),
		"a listing without a job number is rejected before touching the database")
}
