package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ProbeResult is what a site's landing page tells us about it.
type ProbeResult struct {
	// FinalURL is the URL after redirects.
	FinalURL string
	Title    string
}

// Prober fetches a landing page with colly and reads its title.
type Prober struct {
	UserAgent string
	Timeout   time.Duration
}

const defaultProbeTimeout = 30 * time.Second

// Probe visits rawURL once and follows redirects.
func (p Prober) Probe(ctx context.Context, rawURL string) (ProbeResult, error) {
	c := colly.NewCollector(colly.Async(false))
	if p.UserAgent != "" {
		c.UserAgent = p.UserAgent
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	c.SetRequestTimeout(timeout)

	var (
		res      ProbeResult
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		res.FinalURL = r.Request.URL.String()
	})
	c.OnHTML("title", func(e *colly.HTMLElement) {
		if res.Title == "" {
			res.Title = strings.Join(strings.Fields(e.Text), " ")
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return ProbeResult{}, fmt.Errorf("probe %s: %w", rawURL, ctx.Err())
	case err := <-done:
		if err != nil {
			return ProbeResult{}, fmt.Errorf("probe %s: %w", rawURL, err)
		}
	}
	if fetchErr != nil {
		return ProbeResult{}, fmt.Errorf("probe %s: %w", rawURL, fetchErr)
	}
	if res.Title == "" {
		return ProbeResult{}, errors.New("page has no title")
	}
	return res, nil
}
