package jptext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConvertEraDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"reiwa", "令和5年4月1日", time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"heisei year one", "平成1年1月8日", time.Date(1989, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"showa", "昭和64年1月7日", time.Date(1989, 1, 7, 0, 0, 0, 0, time.UTC)},
		{"taisho", "大正15年12月25日", time.Date(1926, 12, 25, 0, 0, 0, 0, time.UTC)},
		{"meiji", "明治45年7月30日", time.Date(1912, 7, 30, 0, 0, 0, 0, time.UTC)},
		{"gregorian fallback", "2023年04月01日", time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"gregorian single digit month", "2024年4月1日", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"full-width digits", "令和５年４月１日", time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"surrounding whitespace", " 令和5年4月1日 ", time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ConvertEraDate(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestConvertEraDateMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"unknown era", "慶応3年1月1日"},
		{"wrong separators", "令和5/4/1"},
		{"missing day", "令和5年4月"},
		{"month out of range", "令和5年13月1日"},
		{"day out of range", "平成3年2月30日"},
		{"plain text", "現存"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ConvertEraDate(tc.in)
			require.Error(t, err)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, tc.in, perr.Input)
		})
	}
}
