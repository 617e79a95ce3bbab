package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/extract"
	"github.com/kaishamap/company-pipeline/internal/jptext"
	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

const pensionSource = "pension"

// pensionRowWidth is the cell count of a registry result row: name, address,
// corporate number, expanded-coverage mark, status, pension office, coverage
// start date, insured count.
const pensionRowWidth = 8

// pensionHeaderCap bounds the buffered page prefix kept for the update-stamp
// lookup; the stamp precedes the result table.
const pensionHeaderCap = 64 << 10

// PensionConfig configures the coverage-registry adapter.
type PensionConfig struct {
	SearchURL string
	Charset   Charset
}

// PensionAdapter looks up one company in the pension coverage registry by
// its 13-digit corporate number and yields the company as the registry
// renders it plus one insured-count observation. The observation is dated by
// the registry's own stated update date, not the scrape time, so two scrapes
// of the same registry snapshot converge on the same time-series point.
type PensionAdapter struct {
	cfg    PensionConfig
	client *http.Client
	clock  pipeline.Clock
	logger *zap.Logger
}

// NewPensionAdapter builds the adapter. A nil client gets a default with
// sane timeouts.
func NewPensionAdapter(cfg PensionConfig, client *http.Client, clock pipeline.Clock, logger *zap.Logger) *PensionAdapter {
	if client == nil {
		client = defaultHTTPClient()
	}
	if clock == nil {
		clock = pipeline.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PensionAdapter{cfg: cfg, client: client, clock: clock, logger: logger}
}

// Source implements pipeline.CandidateFetcher.
func (a *PensionAdapter) Source() string { return pensionSource }

// FetchCandidate implements pipeline.CandidateFetcher; key is the corporate
// number.
func (a *PensionAdapter) FetchCandidate(ctx context.Context, key string) (pipeline.Candidate, error) {
	form := url.Values{
		"hdnPrefectureCode":                            {""},
		"hdnSearchOffice":                              {"3"},
		"hdnSearchCriteria":                            {"3"},
		"txtOfficeName":                                {""},
		"txtOfficeAddress":                             {""},
		"txtHoujinNo":                                  {key},
		"hdnDisplayItemsRestorationScreenDto":          {""},
		"hdnDisplayItemsRestorationScreenDtoKeepParam": {"false"},
		"gmnId":        {"GB10001SC010"},
		"hdnErrorFlg":  {""},
		"eventId":      {"/SEARCH.HTML"},
		"/search.html": {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.SearchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return pipeline.Candidate{}, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return pipeline.Candidate{}, &pipeline.FetchError{Source: pensionSource, URL: a.cfg.SearchURL, Err: err}
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return pipeline.Candidate{}, &pipeline.FetchError{Source: pensionSource, URL: a.cfg.SearchURL, StatusCode: resp.StatusCode}
	}

	// The update stamp sits in the page header; the result table dominates
	// the body. Stream the rows and keep only a capped header prefix for the
	// stamp lookup.
	var header bytes.Buffer
	var firstRow []string
	stream := extract.NewRowStream(extract.StreamOptions{
		ContainerClass: "form_table",
		CellCount:      pensionRowWidth,
	}, func(cells []string) {
		if firstRow == nil {
			firstRow = cells
		}
	})
	body := io.TeeReader(decodeReader(resp.Body, a.cfg.Charset), cappedWriter{buf: &header, limit: pensionHeaderCap})
	if _, err := io.Copy(stream, body); err != nil {
		_ = stream.Close()
		return pipeline.Candidate{}, &pipeline.ParseError{Source: pensionSource, Reason: "malformed document", Err: err}
	}
	if err := stream.Close(); err != nil {
		return pipeline.Candidate{}, &pipeline.ParseError{Source: pensionSource, Reason: "malformed document", Err: err}
	}
	if firstRow == nil {
		return pipeline.Candidate{}, pipeline.ErrNotFound
	}
	// The registry reports one office per corporate-number search; extra rows
	// are decorative repeats of the same entity.
	cells := firstRow

	observed := a.observationDate(header.Bytes())
	coverageStart, err := jptext.ConvertEraDate(cells[6])
	if err != nil {
		return pipeline.Candidate{}, &pipeline.ParseError{Source: pensionSource, Input: cells[6], Reason: "coverage start date", Err: err}
	}

	count, err := strconv.Atoi(jptext.ToHalfWidthDigits(strings.TrimSpace(cells[7])))
	if err != nil {
		// A blank or garbled count is a parse failure, never a zero.
		return pipeline.Candidate{}, &pipeline.ParseError{Source: pensionSource, Input: cells[7], Reason: "insured count", Err: err}
	}

	name := cells[0]
	address := cells[1]
	rec := pipeline.CompanyRecord{
		CorporateNumber:    cells[2],
		Name:               name,
		NormalizedName:     jptext.NormalizeCompanyName(name),
		Address:            address,
		NormalizedAddress:  jptext.NormalizeAddress(address),
		IsExpandedCoverage: cells[3] != "",
		IsActive:           strings.Contains(cells[4], "現存"),
		PensionOfficeName:  cells[5],
		CoverageStartDate:  &coverageStart,
	}
	return pipeline.Candidate{
		Company:     rec,
		Observation: &pipeline.Observation{Count: count, ObservedDate: observed},
	}, nil
}

// observationDate reads the registry's "data updated" stamp from the page
// header. When the stamp is missing or garbled the scrape date stands in,
// logged so an operator can spot a layout change.
func (a *PensionAdapter) observationDate(header []byte) time.Time {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(header))
	if err == nil {
		if text := extract.FirstText(doc, ".basic_info_wp .update"); text != "" {
			if d, convErr := jptext.ConvertEraDate(text); convErr == nil {
				return d
			}
			a.logger.Warn("unreadable registry update date", zap.String("text", text))
		} else {
			a.logger.Warn("registry update date missing")
		}
	}
	now := a.clock.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// cappedWriter keeps the first limit bytes and swallows the rest, so a
// TeeReader through it never stalls the streaming side.
type cappedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w cappedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if room := w.limit - w.buf.Len(); room > 0 {
		if n > room {
			p = p[:room]
		}
		w.buf.Write(p)
	}
	return n, nil
}
