package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	t.Parallel()

	entries, err := migrationFS.ReadDir("sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
		body, err := migrationFS.ReadFile("sql/" + entry.Name())
		require.NoError(t, err)
		text := string(body)
		require.Contains(t, text, "-- +goose Up", entry.Name())
		require.Contains(t, text, "-- +goose Down", entry.Name())
	}

	require.Contains(t, names, "00001_companies.sql")
	require.Contains(t, names, "00002_insured_counts.sql")
	require.Contains(t, names, "00003_profile_companies.sql")
	require.Contains(t, names, "00004_job_listings.sql")

	companies, err := migrationFS.ReadFile("sql/00002_insured_counts.sql")
	require.NoError(t, err)
	require.True(t, strings.Contains(string(companies), "UNIQUE (company_id, count_date)"),
		"the observation table must be unique per company and date")
}
