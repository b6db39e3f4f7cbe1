package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tunesync/core/match"
	"tunesync/logger"
	"tunesync/model"
)

const mirrorstreamName = "mirrorstream"

// mirrorTimeout bounds each individual mirror request. The mirrors are
// known to be unstable, so requests race in parallel instead of accumulating
// serial timeouts.
const mirrorTimeout = 8 * time.Second

// MirrorstreamClient searches a JSON API that is replicated across several
// unreliable mirror hosts. All mirrors are queried concurrently; the first
// successful response wins and the rest are cancelled.
type MirrorstreamClient struct {
	hosts      []string
	httpClient *http.Client
}

// NewMirrorstreamClient creates the adapter for the given mirror base URLs.
func NewMirrorstreamClient(hosts []string) *MirrorstreamClient {
	return &MirrorstreamClient{
		hosts: hosts,
		// per-request deadlines come from the context, not the client
		httpClient: &http.Client{},
	}
}

func (c *MirrorstreamClient) Name() string { return mirrorstreamName }

type mirrorResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Size    int64  `json:"size"`
}

// Search races all mirrors for the track and returns ready candidates from
// the first mirror that answers with results. Individual mirror failures
// are tolerated, but when every mirror errored the source reports itself
// unreachable instead of pretending the track does not exist.
func (c *MirrorstreamClient) Search(ctx context.Context, track model.Track) ([]model.StreamCandidate, error) {
	if len(c.hosts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var failures atomic.Int32
	results := make(chan []mirrorResult, len(c.hosts))
	g, gctx := errgroup.WithContext(ctx)
	for _, host := range c.hosts {
		host := host
		g.Go(func() error {
			entries, err := c.searchMirror(gctx, host, track)
			if err != nil {
				logger.Debug("mirror search failed",
					logger.String("host", host),
					logger.ErrorField(err))
				failures.Add(1)
				return nil
			}
			if len(entries) == 0 {
				// the mirror answered, the track is just not there
				return nil
			}
			select {
			case results <- entries:
				// first winner cancels the remaining mirrors
				cancel()
			default:
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	entries, ok := <-results
	if !ok {
		if int(failures.Load()) == len(c.hosts) {
			return nil, fmt.Errorf("all %d mirrors unreachable", len(c.hosts))
		}
		return nil, nil
	}

	var candidates []model.StreamCandidate
	for _, e := range entries {
		if e.URL == "" || !match.Titles(e.Title, track.Title) {
			continue
		}
		candidates = append(candidates, model.StreamCandidate{
			SourceName: mirrorstreamName,
			StreamURL:  e.URL,
			Quality:    e.Quality,
			Size:       e.Size,
			Status:     model.StatusReady,
			FileName:   e.Title,
		})
	}
	return candidates, nil
}

// Poll is a no-op for this source: every candidate it returns is ready.
func (c *MirrorstreamClient) Poll(ctx context.Context, jobID string) (*model.StreamCandidate, error) {
	return nil, ErrUnknownJob
}

func (c *MirrorstreamClient) searchMirror(ctx context.Context, host string, track model.Track) ([]mirrorResult, error) {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/search?q=%s",
		host, url.QueryEscape(track.Artist+" "+track.Title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []mirrorResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("mirror decode failed: %w", err)
	}
	return payload.Results, nil
}
