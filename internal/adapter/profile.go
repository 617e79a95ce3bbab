package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

// ProfileConfig describes one company-profile site crawled by incrementing
// numeric id. The selectors name the site's label/value info rows; the label
// map routes known labels into ProfileCompany fields and ignores the rest.
type ProfileConfig struct {
	// Source names the site in storage and metrics, e.g. "green".
	Source string
	// URLPattern is a fmt pattern with one %d verb for the profile id.
	URLPattern string
	// ItemSelector matches one label/value info row.
	ItemSelector string
	// LabelSelector and ValueSelector match within an info row.
	LabelSelector string
	ValueSelector string
	// NameLabel and AddressLabel are the row labels carrying the company
	// name and head-office address, e.g. 会社名 and 本社住所.
	NameLabel    string
	AddressLabel string
	UserAgent    string
	// Timeout bounds one page fetch end to end.
	Timeout time.Duration
}

// ProfileAdapter scrapes a profile site page by page. Missing ids are normal
// in these sites' id spaces, so a 404 maps to ErrNotFound and the driver
// just moves on.
type ProfileAdapter struct {
	cfg       ProfileConfig
	collector *colly.Collector
	logger    *zap.Logger
}

// NewProfileAdapter builds the adapter on a colly collector.
func NewProfileAdapter(cfg ProfileConfig, logger *zap.Logger) *ProfileAdapter {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	c.AllowURLRevisit = true
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	return &ProfileAdapter{cfg: cfg, collector: c, logger: logger}
}

// Source implements pipeline.CandidateFetcher.
func (a *ProfileAdapter) Source() string { return a.cfg.Source }

// FetchProfile retrieves one profile page and maps its labeled info rows to
// a ProfileCompany.
func (a *ProfileAdapter) FetchProfile(ctx context.Context, id int64) (pipeline.ProfileCompany, error) {
	pageURL := fmt.Sprintf(a.cfg.URLPattern, id)

	body, err := a.fetch(ctx, pageURL)
	if err != nil {
		return pipeline.ProfileCompany{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pipeline.ProfileCompany{}, &pipeline.ParseError{Source: a.cfg.Source, Reason: "malformed profile page", Err: err}
	}

	pc := pipeline.ProfileCompany{
		Source:    a.cfg.Source,
		SourceKey: id,
		URL:       pageURL,
	}
	doc.Find(a.cfg.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		label := strings.TrimSpace(item.Find(a.cfg.LabelSelector).First().Text())
		value := strings.TrimSpace(item.Find(a.cfg.ValueSelector).First().Text())
		if label == "" || value == "" {
			return
		}
		switch label {
		case a.cfg.NameLabel:
			pc.Name = value
		case a.cfg.AddressLabel:
			pc.Address = value
		}
	})

	if pc.Name == "" {
		return pipeline.ProfileCompany{}, pipeline.ErrNotFound
	}
	return pc, nil
}

// fetch runs one GET through the collector, mapping a 404 to ErrNotFound
// and any other failure to FetchError.
func (a *ProfileAdapter) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	collector := a.collector.Clone()
	resultCh := make(chan profileResult, 1)
	var once sync.Once
	send := func(res profileResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(profileResult{body: append([]byte{}, r.Body...)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		if status == http.StatusNotFound {
			send(profileResult{err: pipeline.ErrNotFound})
			return
		}
		send(profileResult{err: &pipeline.FetchError{Source: a.cfg.Source, URL: pageURL, StatusCode: status, Err: err}})
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, &pipeline.FetchError{Source: a.cfg.Source, URL: pageURL, Err: err}
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return res.body, res.err
	default:
		return nil, &pipeline.FetchError{Source: a.cfg.Source, URL: pageURL, Err: errors.New("no response produced")}
	}
}

type profileResult struct {
	body []byte
	err  error
}
