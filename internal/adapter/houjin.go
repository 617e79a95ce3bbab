package adapter

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/extract"
	"github.com/kaishamap/company-pipeline/internal/jptext"
	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

const houjinSource = "houjin"

var postalCodePattern = regexp.MustCompile(`〒?\d{3}-?\d{4}`)

// HoujinConfig configures the corporate-number registry adapter.
type HoujinConfig struct {
	SearchURL string
	Charset   Charset
}

// HoujinAdapter resolves a company name plus address to the 13-digit
// corporate number via the national registry's search form. The registry is
// a last resort for records no other source has numbered, so the adapter is
// deliberately conservative: it returns a number only when exactly one
// registry row survives name and address filtering, and ErrAmbiguousMatch
// otherwise. A guessed number would poison the natural key for good.
type HoujinAdapter struct {
	cfg    HoujinConfig
	client *http.Client
	logger *zap.Logger
}

// NewHoujinAdapter builds the adapter.
func NewHoujinAdapter(cfg HoujinConfig, client *http.Client, logger *zap.Logger) *HoujinAdapter {
	if client == nil {
		client = defaultHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HoujinAdapter{cfg: cfg, client: client, logger: logger}
}

// Source names the adapter for pacing and metrics.
func (a *HoujinAdapter) Source() string { return houjinSource }

// LookupCorporateNumber searches the registry by trade name, narrowed by the
// postal code or prefecture found in address. It returns ErrNotFound when no
// row matches and ErrAmbiguousMatch when several plausible rows do.
func (a *HoujinAdapter) LookupCorporateNumber(ctx context.Context, name, address string) (string, error) {
	doc, err := a.search(ctx, name, address)
	if err != nil {
		return "", err
	}

	rows := doc.Find(".tbl01 tbody tr")
	if rows.Length() == 0 {
		return "", pipeline.ErrNotFound
	}

	// A single hit is trusted as-is. The registry's own search already
	// matched the name; with one row there is nothing to disambiguate.
	if extract.FirstText(doc, ".srhResult strong") == "1" || rows.Length() == 1 {
		number := strings.TrimSpace(rows.First().Find("th").First().Text())
		if number == "" {
			return "", &pipeline.ParseError{Source: houjinSource, Reason: "result row without a corporate number"}
		}
		return number, nil
	}

	wantName := jptext.NormalizeCompanyName(name)
	type hit struct {
		number  string
		address string
	}
	var hits []hit
	rows.Each(func(_ int, row *goquery.Selection) {
		number := strings.TrimSpace(row.Find("th").First().Text())
		cells := row.Find("td")
		if number == "" || cells.Length() < 2 {
			return
		}
		if jptext.NormalizeCompanyName(rowCompanyName(cells.First())) != wantName {
			return
		}
		hits = append(hits, hit{number: number, address: strings.TrimSpace(cells.Eq(1).Text())})
	})

	switch len(hits) {
	case 0:
		return "", pipeline.ErrNotFound
	case 1:
		return hits[0].number, nil
	}

	// Several rows share the normalized name; the candidate address is the
	// only remaining discriminator.
	wantAddr := jptext.NormalizeAddress(address)
	var matched []hit
	for _, h := range hits {
		if wantAddr != "" && jptext.NormalizeAddress(h.address) == wantAddr {
			matched = append(matched, h)
		}
	}
	if len(matched) == 1 {
		return matched[0].number, nil
	}
	a.logger.Info("ambiguous registry lookup",
		zap.String("name", name),
		zap.Int("name_matches", len(hits)),
		zap.Int("address_matches", len(matched)),
	)
	return "", pipeline.ErrAmbiguousMatch
}

// rowCompanyName returns the cell text with the furigana ruby node removed.
func rowCompanyName(cell *goquery.Selection) string {
	clone := cell.Clone()
	clone.Find(".furigana").Remove()
	return strings.TrimSpace(clone.Text())
}

func (a *HoujinAdapter) search(ctx context.Context, name, address string) (*goquery.Document, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := [][2]string{
		{"jp.go.nta.houjin_bangou.framework.web.common.CNSFWTokenProcessor.request.token", "dummy-token"},
		{"houzinNmShTypeRbtn", "2"},
		{"houzinNmTxtf", jptext.StripEntityForm(name)},
		{"_kanaCkbx", "on"},
		{"_noconvCkbx", "on"},
		{"_enCkbx", "on"},
	}
	fields = append(fields, addressFields(address)...)
	fields = append(fields, [][2]string{
		{"houzinNoShTyoumeSts", "0"},
		{"houzinNoShSonotaZyoukenSts", "0"},
		{"_houzinKdCkbx", "on"},
		{"_historyCkbx", "on"},
		{"_hideCkbx", "on"},
		{"closeCkbx", "1"},
		{"_closeCkbx", "on"},
		{"_chgYmdShTargetCkbx", "on"},
		{"orderRbtn", "1"},
		{"houzinKdRbtn", "0"},
		{"searchFlg", "1"},
		{"preSyousaiScreenId", "KJSCR0101010"},
	}...)

	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("build registry form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build registry form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.SearchURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &pipeline.FetchError{Source: houjinSource, URL: a.cfg.SearchURL, Err: err}
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &pipeline.FetchError{Source: houjinSource, URL: a.cfg.SearchURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(decodeReader(resp.Body, a.cfg.Charset))
	if err != nil {
		return nil, &pipeline.ParseError{Source: houjinSource, Reason: "malformed document", Err: err}
	}
	return doc, nil
}

// addressFields narrows the search by postal code when the address carries
// one, else by prefecture. An address with neither adds no filter.
func addressFields(address string) [][2]string {
	if address == "" {
		return nil
	}
	if code := postalCodePattern.FindString(address); code != "" {
		digits := strings.NewReplacer("〒", "", "-", "").Replace(code)
		return [][2]string{
			{"houzinAddrShTypeRbtn", "2"},
			{"zipCdTxtf", digits},
		}
	}
	if pref := jptext.ExtractPrefecture(address); pref != "" {
		if code := jptext.PrefectureCode(pref); code != "" {
			return [][2]string{
				{"houzinAddrShTypeRbtn", "1"},
				{"prefectureLst", code},
			}
		}
	}
	return nil
}
