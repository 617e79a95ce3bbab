package postgres

import (
	"context"
	"fmt"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

// UpsertJobListing implements pipeline.JobListingStore, keyed on job_number.
// A re-crawled listing replaces its previous capture.
func (s *CompanyStore) UpsertJobListing(ctx context.Context, l pipeline.JobListing) error {
	if l.JobNumber == "" {
		return fmt.Errorf("job listing requires a job number")
	}
	query := `
INSERT INTO job_listings (
	job_number, corporate_number, reception_date, expiration_date,
	security_office, job_category, industry,
	company_name, company_name_kana, company_postal_code, company_address, company_website,
	title, description, employment_type, employment_period, is_dispatch,
	work_postal_code, work_address, nearest_station, commute_minutes, smoking_policy, car_commute,
	base_salary_min, base_salary_max, fixed_overtime_pay, salary_type, bonus_system, salary_raise,
	work_hours_start, work_hours_end, break_minutes, overtime_avg_hours, annual_holidays, holidays, insurance,
	retirement_system, retirement_age, rehire_system,
	age_limit_min, age_limit_max, age_limit_reason,
	required_experience, required_licenses, hiring_count, selection_methods, application_method
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,
	$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,$41,$42,$43,$44,$45,$46,$47
)
ON CONFLICT (job_number) DO UPDATE SET
	corporate_number = EXCLUDED.corporate_number,
	reception_date = EXCLUDED.reception_date,
	expiration_date = EXCLUDED.expiration_date,
	security_office = EXCLUDED.security_office,
	job_category = EXCLUDED.job_category,
	industry = EXCLUDED.industry,
	company_name = EXCLUDED.company_name,
	company_name_kana = EXCLUDED.company_name_kana,
	company_postal_code = EXCLUDED.company_postal_code,
	company_address = EXCLUDED.company_address,
	company_website = EXCLUDED.company_website,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	employment_type = EXCLUDED.employment_type,
	employment_period = EXCLUDED.employment_period,
	is_dispatch = EXCLUDED.is_dispatch,
	work_postal_code = EXCLUDED.work_postal_code,
	work_address = EXCLUDED.work_address,
	nearest_station = EXCLUDED.nearest_station,
	commute_minutes = EXCLUDED.commute_minutes,
	smoking_policy = EXCLUDED.smoking_policy,
	car_commute = EXCLUDED.car_commute,
	base_salary_min = EXCLUDED.base_salary_min,
	base_salary_max = EXCLUDED.base_salary_max,
	fixed_overtime_pay = EXCLUDED.fixed_overtime_pay,
	salary_type = EXCLUDED.salary_type,
	bonus_system = EXCLUDED.bonus_system,
	salary_raise = EXCLUDED.salary_raise,
	work_hours_start = EXCLUDED.work_hours_start,
	work_hours_end = EXCLUDED.work_hours_end,
	break_minutes = EXCLUDED.break_minutes,
	overtime_avg_hours = EXCLUDED.overtime_avg_hours,
	annual_holidays = EXCLUDED.annual_holidays,
	holidays = EXCLUDED.holidays,
	insurance = EXCLUDED.insurance,
	retirement_system = EXCLUDED.retirement_system,
	retirement_age = EXCLUDED.retirement_age,
	rehire_system = EXCLUDED.rehire_system,
	age_limit_min = EXCLUDED.age_limit_min,
	age_limit_max = EXCLUDED.age_limit_max,
	age_limit_reason = EXCLUDED.age_limit_reason,
	required_experience = EXCLUDED.required_experience,
	required_licenses = EXCLUDED.required_licenses,
	hiring_count = EXCLUDED.hiring_count,
	selection_methods = EXCLUDED.selection_methods,
	application_method = EXCLUDED.application_method,
	updated_at = now()`

	args := []any{
		l.JobNumber, l.CorporateNumber, l.ReceptionDate, l.ExpirationDate,
		l.SecurityOffice, l.JobCategory, l.Industry,
		l.CompanyName, l.CompanyNameKana, l.CompanyPostalCode, l.CompanyAddress, l.CompanyWebsite,
		l.Title, l.Description, l.EmploymentType, l.EmploymentPeriod, l.IsDispatch,
		l.WorkPostalCode, l.WorkAddress, l.NearestStation, l.CommuteMinutes, l.SmokingPolicy, l.CarCommute,
		l.BaseSalaryMin, l.BaseSalaryMax, l.FixedOvertimePay, l.SalaryType, l.BonusSystem, l.SalaryRaise,
		l.WorkHoursStart, l.WorkHoursEnd, l.BreakMinutes, l.OvertimeAvgHours, l.AnnualHolidays, l.Holidays, l.Insurance,
		l.RetirementSystem, l.RetirementAge, l.RehireSystem,
		l.AgeLimitMin, l.AgeLimitMax, l.AgeLimitReason,
		l.RequiredExperience, l.RequiredLicenses, l.HiringCount, l.SelectionMethods, l.ApplicationMethod,
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert job listing %s: %w", l.JobNumber, err)
	}
	return nil
}
