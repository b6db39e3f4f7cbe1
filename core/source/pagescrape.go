package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tunesync/core/match"
	"tunesync/model"
)

const pagescrapeName = "pagescrape"

// PagescrapeClient extracts direct stream links from an HTML search-results
// page. Rows that do not pass the title matcher are dropped.
type PagescrapeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPagescrapeClient creates the adapter against the given search endpoint.
func NewPagescrapeClient(baseURL string) *PagescrapeClient {
	return &PagescrapeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *PagescrapeClient) Name() string { return pagescrapeName }

// Search fetches and parses the search-results page. Every returned
// candidate is ready; this source has no job concept.
func (c *PagescrapeClient) Search(ctx context.Context, track model.Track) ([]model.StreamCandidate, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/search?q=%s",
		c.baseURL, url.QueryEscape(track.Artist+" "+track.Title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tunesync)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagescrape: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pagescrape: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pagescrape: parse page: %w", err)
	}

	var candidates []model.StreamCandidate
	doc.Find("div.result, tr.result").Each(func(_ int, row *goquery.Selection) {
		title := strings.TrimSpace(row.Find(".title").First().Text())
		href, ok := row.Find("a.download").First().Attr("href")
		if !ok || title == "" {
			return
		}
		if !match.Titles(title, track.Title) {
			return
		}
		quality := strings.TrimSpace(row.Find(".quality").First().Text())
		if quality == "" {
			quality = "MP3"
		}
		candidates = append(candidates, model.StreamCandidate{
			SourceName: pagescrapeName,
			StreamURL:  c.absolute(href),
			Quality:    quality,
			Status:     model.StatusReady,
			FileName:   title,
		})
	})

	return candidates, nil
}

// Poll is a no-op for this source: every candidate it returns is ready.
func (c *PagescrapeClient) Poll(ctx context.Context, jobID string) (*model.StreamCandidate, error) {
	return nil, ErrUnknownJob
}

func (c *PagescrapeClient) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.baseURL + "/" + strings.TrimLeft(href, "/")
}
