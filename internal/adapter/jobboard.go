package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/jptext"
	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

const jobBoardSource = "jobboard"

// Session is the job board's JSESSIONID, captured from the first response
// and replayed on every later request of the same crawl. It is an explicit
// value so two concurrent crawls never share cookie state.
type Session struct {
	ID string
}

// JobBoardConfig configures the job-board adapter.
type JobBoardConfig struct {
	// SearchURL is the search endpoint, also the session bootstrap URL.
	SearchURL string
	// DetailURL is the listing detail endpoint.
	DetailURL string
	// OccupationCode filters the search, e.g. "09,4" for IT occupations.
	OccupationCode string
	// PageSize is the listing count requested per result page.
	PageSize int
	Charset  Charset
}

// JobBoardAdapter crawls the public job board: a session-bound paginated
// search yielding listing numbers, then one detail page per listing. The
// detail page carries the employer's corporate number, which makes the board
// a company source as much as a listing source.
type JobBoardAdapter struct {
	cfg    JobBoardConfig
	client *http.Client
	logger *zap.Logger
}

// NewJobBoardAdapter builds the adapter.
func NewJobBoardAdapter(cfg JobBoardConfig, client *http.Client, logger *zap.Logger) *JobBoardAdapter {
	if client == nil {
		client = defaultHTTPClient()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobBoardAdapter{cfg: cfg, client: client, logger: logger}
}

// Source implements pipeline.CandidateFetcher.
func (a *JobBoardAdapter) Source() string { return jobBoardSource }

// InitSession bootstraps a session with a plain GET.
func (a *JobBoardAdapter) InitSession(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.SearchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	sess := &Session{}
	resp, err := a.do(req, sess)
	if err != nil {
		return nil, err
	}
	drainAndClose(resp.Body)

	if sess.ID == "" {
		return nil, &pipeline.FetchError{Source: jobBoardSource, URL: a.cfg.SearchURL, Err: fmt.Errorf("no session cookie issued")}
	}
	return sess, nil
}

// SearchPage submits or navigates the search and returns the listing numbers
// on the page plus whether a next page exists. Page 0 submits the search
// form; later pages navigate the stored result set, which is why the session
// must be replayed.
func (a *JobBoardAdapter) SearchPage(ctx context.Context, sess *Session, page int) ([]string, bool, error) {
	form := url.Values{
		"kjKbnRadioBtn":      {"1"},
		"kyujinkensu":        {"0"},
		"searchClear":        {"0"},
		"kiboSuruSKSU1Hidden": {a.cfg.OccupationCode},
		"summaryDisp":        {"false"},
		"searchInitDisp":     {"0"},
		"screenId":           {"GECA110010"},
		"maba_vrbs":          {"infTkRiyoDantaiBtn,searchShosaiBtn,searchBtn,searchNoBtn,searchClearBtn,dispDetailBtn,kyujinhyoBtn"},
		"preCheckFlg":        {"false"},
		"fwListNaviSortTop":  {"1"},
		"fwListNaviDispTop":  {"100"},
		"fwListNaviSortBtm":  {"1"},
		"fwListNaviDispBtm":  {strconv.Itoa(a.cfg.PageSize)},
		"fwListNowPage":      {strconv.Itoa(page)},
		"fwListLeftPage":     {"1"},
		"fwListNaviCount":    {"7"},
		"fwListNaviDisp":     {strconv.Itoa(a.cfg.PageSize)},
		"fwListNaviSort":     {"1"},
	}
	if page == 0 {
		form.Set("searchBtn", "検索")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.SearchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, false, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := a.do(req, sess)
	if err != nil {
		return nil, false, err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, false, &pipeline.FetchError{Source: jobBoardSource, URL: a.cfg.SearchURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(decodeReader(resp.Body, a.cfg.Charset))
	if err != nil {
		return nil, false, &pipeline.ParseError{Source: jobBoardSource, Reason: "malformed search page", Err: err}
	}

	var numbers []string
	doc.Find(".width16em").Each(func(_ int, sel *goquery.Selection) {
		number := strings.ReplaceAll(strings.TrimSpace(sel.Text()), "-", "")
		if number != "" {
			numbers = append(numbers, number)
		}
	})

	next := doc.Find(`input[name="fwListNaviBtnNext"]`)
	_, disabled := next.Attr("disabled")
	hasNext := next.Length() > 0 && !disabled
	return numbers, hasNext, nil
}

// FetchCandidate implements pipeline.CandidateFetcher; key is the listing
// number. The returned candidate carries the listing itself plus the
// employer record; listings whose employer has no published corporate number
// are reported as not found, since an unnumbered employer cannot be
// reconciled from this source.
func (a *JobBoardAdapter) FetchCandidate(ctx context.Context, key string) (pipeline.Candidate, error) {
	detailURL := fmt.Sprintf(
		"%s?screenId=GECA110010&action=dispDetailBtn&kJNo=%s&kJKbn=1&fullPart=1&tatZngy=1&shogaiKbn=0",
		a.cfg.DetailURL, url.QueryEscape(key),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, detailURL, nil)
	if err != nil {
		return pipeline.Candidate{}, fmt.Errorf("build detail request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return pipeline.Candidate{}, &pipeline.FetchError{Source: jobBoardSource, URL: detailURL, Err: err}
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return pipeline.Candidate{}, pipeline.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return pipeline.Candidate{}, &pipeline.FetchError{Source: jobBoardSource, URL: detailURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(decodeReader(resp.Body, a.cfg.Charset))
	if err != nil {
		return pipeline.Candidate{}, &pipeline.ParseError{Source: jobBoardSource, Reason: "malformed detail page", Err: err}
	}

	listing := parseListing(doc)
	if listing.JobNumber == "" {
		listing.JobNumber = key
	}
	if listing.CorporateNumber == "" {
		a.logger.Debug("listing without corporate number", zap.String("job_number", key))
		return pipeline.Candidate{}, pipeline.ErrNotFound
	}

	rec := pipeline.CompanyRecord{
		CorporateNumber:   listing.CorporateNumber,
		Name:              listing.CompanyName,
		NormalizedName:    jptext.NormalizeCompanyName(listing.CompanyName),
		Address:           listing.CompanyAddress,
		NormalizedAddress: jptext.NormalizeAddress(listing.CompanyAddress),
		IsActive:          true,
		SourceURL:         listing.CompanyWebsite,
	}
	return pipeline.Candidate{Company: rec, Listing: &listing}, nil
}

func parseListing(doc *goquery.Document) pipeline.JobListing {
	field := func(id string) string {
		return strings.TrimSpace(doc.Find("#ID_" + id).First().Text())
	}

	salaryMin, salaryMax := parseSalaryRange(field("khky"))
	overtimeMin, _ := parseSalaryRange(field("koteiZngy"))
	hoursStart, hoursEnd := parseWorkHours(field("shgJn1"))
	ageMin, ageMax := parseAgeRange(field("nenreiSegnHanni"))

	listing := pipeline.JobListing{
		JobNumber:       strings.ReplaceAll(field("kjNo"), "-", ""),
		CorporateNumber: field("hoNinNo"),

		ReceptionDate:  parseDate(field("uktkYmd")),
		ExpirationDate: parseDate(field("shkiKigenHi")),
		SecurityOffice: field("juriAtsh"),
		JobCategory:    field("kjKbn"),
		Industry:       field("sngBrui"),

		CompanyName:       field("jgshMei"),
		CompanyNameKana:   field("jgshMeiKana"),
		CompanyPostalCode: strings.TrimPrefix(field("szciYbn"), "〒"),
		CompanyAddress:    field("szci"),
		CompanyWebsite:    doc.Find("#ID_hp").First().AttrOr("href", ""),

		Title:            field("sksu"),
		Description:      field("shigotoNy"),
		EmploymentType:   field("koyoKeitai"),
		EmploymentPeriod: field("koyoKikan"),
		IsDispatch:       field("hakenUkeoiToShgKeitai") != "" && field("hakenUkeoiToShgKeitai") != "派遣・請負ではない",

		WorkPostalCode: strings.TrimPrefix(field("shgBsYubinNo"), "〒"),
		WorkAddress:    field("shgBsJusho"),
		NearestStation: field("shgBsMyorEki"),
		CommuteMinutes: parseNumber(field("shgBsShyoJn")),
		SmokingPolicy:  field("shgBsKitsuTsak"),
		CarCommute:     parseFlag(field("mycarTskn")),

		BaseSalaryMin:    salaryMin,
		BaseSalaryMax:    salaryMax,
		FixedOvertimePay: overtimeMin,
		SalaryType:       field("chgnKeitaiToKbn"),
		BonusSystem:      parseFlag(field("shoyoSdNoUmu")),
		SalaryRaise:      parseFlag(field("shokyuSd")),

		WorkHoursStart:   hoursStart,
		WorkHoursEnd:     hoursEnd,
		BreakMinutes:     parseNumber(field("kyukeiJn")),
		OvertimeAvgHours: parseNumber(field("thkinJkgiRodoJn")),
		AnnualHolidays:   parseNumber(field("nenkanKjsu")),
		Holidays:         field("kyjs"),
		Insurance:        field("knyHoken"),

		RetirementSystem: parseFlag(field("tskinSd")),
		RetirementAge:    parseRetirementAge(field("tnseiTeinenNenrei")),
		RehireSystem:     parseFlag(field("saiKoyoSd")),

		AgeLimitMin:        ageMin,
		AgeLimitMax:        ageMax,
		AgeLimitReason:     field("nenreiSegnNoRy"),
		RequiredExperience: field("hynaKikntShsi"),
		RequiredLicenses:   field("hynaMenkyoSkku"),
		HiringCount:        parseNumber(field("saiyoNinsu")),
		SelectionMethods:   field("selectHoho"),
		ApplicationMethod:  field("oboShoruiNoSofuHoho"),
	}
	return listing
}

var (
	digitRunPattern      = regexp.MustCompile(`\d+`)
	ageRangePattern      = regexp.MustCompile(`(\d+)?歳?[～〜](\d+)?歳?`)
	retirementAgePattern = regexp.MustCompile(`(\d+)歳`)
	clockPattern         = regexp.MustCompile(`(\d{1,2})時(\d{2})分`)
	rangeSepPattern      = regexp.MustCompile(`[～〜]`)
)

// parseNumber pulls the first digit run out of text like 年間120日 or 3人.
func parseNumber(text string) *int {
	digits := digitRunPattern.FindString(jptext.ToHalfWidthDigits(text))
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// parseSalaryRange splits 200,000円～300,000円 into its bounds. A single
// figure fills only the minimum.
func parseSalaryRange(text string) (*int, *int) {
	if text == "" {
		return nil, nil
	}
	parts := rangeSepPattern.Split(text, 2)
	minV := parseCommaNumber(parts[0])
	var maxV *int
	if len(parts) > 1 {
		maxV = parseCommaNumber(parts[1])
	}
	return minV, maxV
}

func parseCommaNumber(text string) *int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, jptext.ToHalfWidthDigits(text))
	if cleaned == "" {
		return nil
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil
	}
	return &n
}

func parseAgeRange(text string) (*int, *int) {
	m := ageRangePattern.FindStringSubmatch(jptext.ToHalfWidthDigits(text))
	if m == nil {
		return nil, nil
	}
	return atoiPtr(m[1]), atoiPtr(m[2])
}

func parseRetirementAge(text string) *int {
	m := retirementAgePattern.FindStringSubmatch(jptext.ToHalfWidthDigits(text))
	if m == nil {
		return nil
	}
	return atoiPtr(m[1])
}

// parseWorkHours turns 9時00分～18時00分 into ("09:00", "18:00").
func parseWorkHours(text string) (string, string) {
	parts := rangeSepPattern.Split(jptext.ToHalfWidthDigits(text), 2)
	if len(parts) != 2 {
		return "", ""
	}
	return clockText(parts[0]), clockText(parts[1])
}

func clockText(text string) string {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	hour := m[1]
	if len(hour) == 1 {
		hour = "0" + hour
	}
	return hour + ":" + m[2]
}

// parseFlag reads the board's あり/なし and 可/不可 toggles.
func parseFlag(text string) bool {
	return text == "あり" || text == "可"
}

func parseDate(text string) *time.Time {
	if text == "" {
		return nil
	}
	d, err := jptext.ConvertEraDate(text)
	if err != nil {
		return nil
	}
	return &d
}

func atoiPtr(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// do sends the request with the session cookie attached and captures any
// freshly issued JSESSIONID back into sess.
func (a *JobBoardAdapter) do(req *http.Request, sess *Session) (*http.Response, error) {
	if sess.ID != "" {
		req.AddCookie(&http.Cookie{Name: "JSESSIONID", Value: sess.ID})
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &pipeline.FetchError{Source: jobBoardSource, URL: req.URL.String(), Err: err}
	}
	for _, c := range resp.Cookies() {
		if c.Name == "JSESSIONID" && c.Value != "" {
			sess.ID = c.Value
		}
	}
	return resp, nil
}
