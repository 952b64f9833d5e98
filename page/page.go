// Package page fetches a page and extracts the on-page signals and main text
// used by AI content analysis and to fill in heading and meta details.
package page

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/insights/models"
)

const (
	userAgent    = "InsightsBot/1.0"
	maxPageBytes = 5 << 20
	// MaxTextRunes bounds the text handed to the AI service.
	MaxTextRunes = 12000
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Snapshot is what the service knows about a page from its HTML alone.
type Snapshot struct {
	URL             string                  `json:"url"`
	Title           string                  `json:"title"`
	MetaDescription string                  `json:"metaDescription"`
	Viewport        string                  `json:"viewport"`
	Canonical       string                  `json:"canonical"`
	Headings        models.HeadingStructure `json:"headings"`
	H1Text          []string                `json:"h1Text"`
	WordCount       int                     `json:"wordCount"`
	TotalImages     int                     `json:"totalImages"`
	ImagesWithAlt   int                     `json:"imagesWithAlt"`
	PageSize        int                     `json:"pageSize"`
	LoadTime        time.Duration           `json:"loadTime"`
	Text            string                  `json:"text"`
}

// Fetcher downloads pages.
type Fetcher struct {
	client *http.Client
	log    logrus.FieldLogger
}

func NewFetcher(client *http.Client, logger logrus.FieldLogger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{client: client, log: logger.WithField("component", "page")}
}

// Fetch downloads pageURL and parses it. Non-2xx responses are UpstreamErrors.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Snapshot, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.UpstreamError{Service: "page", Message: "fetch failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.UpstreamError{Service: "page", StatusCode: resp.StatusCode, Message: resp.Status}
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if _, err := io.Copy(buf, io.LimitReader(resp.Body, maxPageBytes)); err != nil {
		return nil, &models.UpstreamError{Service: "page", Message: "read failed", Err: err}
	}
	loadTime := time.Since(start)

	snap, err := Parse(buf.Bytes(), pageURL)
	if err != nil {
		return nil, err
	}
	snap.LoadTime = loadTime

	f.log.WithFields(logrus.Fields{
		"url":        pageURL,
		"page_bytes": snap.PageSize,
		"words":      snap.WordCount,
	}).Debug("page fetched")
	return snap, nil
}

// Parse extracts a Snapshot from raw HTML.
func Parse(body []byte, pageURL string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	snap := &Snapshot{URL: pageURL, PageSize: len(body)}
	snap.Title = strings.TrimSpace(doc.Find("title").First().Text())
	snap.MetaDescription = strings.TrimSpace(doc.Find("meta[name='description']").AttrOr("content", ""))
	snap.Viewport = doc.Find("meta[name='viewport']").AttrOr("content", "")
	snap.Canonical = doc.Find("link[rel='canonical']").AttrOr("href", "")

	readHeadings(doc, snap)

	images := doc.Find("img")
	snap.TotalImages = images.Length()
	images.Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			snap.ImagesWithAlt++
		}
	})

	snap.Text = mainText(body, doc)
	snap.WordCount = len(strings.Fields(snap.Text))
	return snap, nil
}

func readHeadings(doc *goquery.Document, snap *Snapshot) {
	h := &snap.Headings
	h.H1Count = doc.Find("h1").Length()
	h.H2Count = doc.Find("h2").Length()
	h.H3Count = doc.Find("h3").Length()
	h.HasH1 = h.H1Count > 0
	h.SingleH1 = h.H1Count == 1
	h.HasSubheadings = h.H2Count > 0 || h.H3Count > 0

	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		snap.H1Text = append(snap.H1Text, strings.TrimSpace(s.Text()))
	})

	// each heading may be at most one level deeper than the one before it
	h.ProperOrder = true
	prev := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level := int(goquery.NodeName(s)[1] - '0')
		if prev != 0 && level > prev+1 {
			h.ProperOrder = false
		}
		prev = level
	})
}

// mainText prefers trafilatura's boilerplate-free extraction and falls back
// to the visible body text.
func mainText(body []byte, doc *goquery.Document) string {
	text := ""
	if result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{}); err == nil && result != nil {
		text = result.ContentText
	}
	if strings.TrimSpace(text) == "" {
		visible := doc.Find("body").Clone()
		visible.Find("script, style, noscript").Remove()
		text = visible.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > MaxTextRunes {
		text = string(r[:MaxTextRunes])
	}
	return text
}

// ApplyTo copies the snapshot's heading and meta facts onto an SEO result.
func (s *Snapshot) ApplyTo(res *models.PageInsightsResult) {
	res.Headings = s.Headings
	res.Meta.HasTitle = s.Title != ""
	res.Meta.TitleLength = len([]rune(s.Title))
	res.Meta.HasDescription = s.MetaDescription != ""
	res.Meta.DescriptionLength = len([]rune(s.MetaDescription))
	res.Meta.HasViewport = s.Viewport != ""
	res.Meta.HasCanonical = s.Canonical != ""
}
