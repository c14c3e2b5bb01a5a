package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/vac-tools/vacsync/internal/config"
	"github.com/vac-tools/vacsync/pkg/models"
)

// Client fetches the remote chart catalog. It is stateless: every Fetch maps
// the current wire payload to a fresh slice of records.
type Client struct {
	httpClient *http.Client
	url        string
	format     string
}

// New creates a catalog client for the given endpoint.
func New(catalogURL, format string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        catalogURL,
		format:     format,
	}
}

// jsonRecord is the JSON wire shape of one catalog entry.
type jsonRecord struct {
	OACI    string `json:"oaci"`
	City    string `json:"city"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Fetch retrieves and decodes the catalog. Transport failures wrap
// models.ErrNetwork, malformed payloads wrap models.ErrParse. No retries;
// the caller decides how to handle failure.
func (c *Client) Fetch(ctx context.Context) ([]models.ChartRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrNetwork, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: catalog returned HTTP %d", models.ErrNetwork, resp.StatusCode)
	}

	var records []models.ChartRecord
	switch c.format {
	case config.FormatHTML:
		records, err = c.parseHTML(resp)
	default:
		records, err = c.parseJSON(resp)
	}
	if err != nil {
		return nil, err
	}

	return dedupe(records), nil
}

func (c *Client) parseJSON(resp *http.Response) ([]models.ChartRecord, error) {
	var raw []jsonRecord
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %v", models.ErrParse, err)
	}

	records := make([]models.ChartRecord, 0, len(raw))
	for _, r := range raw {
		if r.OACI == "" || r.Version == "" || r.URL == "" {
			return nil, fmt.Errorf("%w: catalog entry missing oaci, version or url", models.ErrParse)
		}
		records = append(records, models.ChartRecord{
			OACI:          r.OACI,
			City:          r.City,
			RemoteVersion: r.Version,
			PDFURL:        c.absolute(r.URL),
		})
	}
	return records, nil
}

// parseHTML handles the SIA-style chart index page: one table row per chart
// with OACI code, city and publication date cells, and a link to the PDF.
func (c *Client) parseHTML(resp *http.Response) ([]models.ChartRecord, error) {
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse catalog page: %v", models.ErrParse, err)
	}

	var records []models.ChartRecord
	var parseErr error
	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return true // header or spacer row
		}
		oaci := strings.TrimSpace(cells.Eq(0).Text())
		city := strings.TrimSpace(cells.Eq(1).Text())
		version := strings.TrimSpace(cells.Eq(2).Text())
		href, ok := row.Find("a[href]").First().Attr("href")
		if oaci == "" || version == "" || !ok {
			parseErr = fmt.Errorf("%w: chart row missing oaci, date or link", models.ErrParse)
			return false
		}
		records = append(records, models.ChartRecord{
			OACI:          oaci,
			City:          city,
			RemoteVersion: version,
			PDFURL:        c.absolute(href),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no chart rows found in catalog page", models.ErrParse)
	}
	return records, nil
}

// absolute resolves relative PDF links against the catalog URL.
func (c *Client) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(c.url)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// dedupe keeps the first occurrence of each OACI code; catalog keys must be
// unique for the reconciler.
func dedupe(records []models.ChartRecord) []models.ChartRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		if seen[r.OACI] {
			continue
		}
		seen[r.OACI] = true
		out = append(out, r)
	}
	return out
}
