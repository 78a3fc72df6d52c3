package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"goalline-alerts/internal/match"
)

const (
	hkjcJSONPath      = "/football/getJSON.aspx"
	hkjcResultsType   = "results.aspx"
	hkjcAllOddsType   = "odds_allodds.aspx"
	defaultTrackLine  = "0.5/1.0"
	defaultHKJCBase   = "https://bet.hkjc.com"
	defaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	defaultRetryCount = 20
)

// ObserveFunc receives the outcome of every outbound request.
type ObserveFunc func(source, op string, elapsed time.Duration, err error)

// HKJCOptions parameterise the HKJC JSON client.
type HKJCOptions struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	TrackedLine   string
	RetryAttempts int
	RetryBackoff  time.Duration
	RateLimit     float64
	Burst         int
	Observe       ObserveFunc
}

// HKJC reads the live results feed and live goal-line prices.
type HKJC struct {
	opts    HKJCOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewHKJC constructs the client.
func NewHKJC(opts HKJCOptions, logger zerolog.Logger) *HKJC {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.TrackedLine == "" {
		opts.TrackedLine = defaultTrackLine
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryCount
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultHKJCBase
	}

	return &HKJC{
		opts:    opts,
		logger:  logger.With().Str("component", "hkjc_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		baseURL: baseURL,
	}
}

type hkjcResultsPage struct {
	Matches []hkjcMatch `json:"matches"`
}

type hkjcTeam struct {
	NameCH string `json:"teamNameCH"`
	NameEN string `json:"teamNameEN"`
}

type hkjcMatch struct {
	ID         string        `json:"matchID"`
	State      string        `json:"matchState"`
	Date       string        `json:"matchDate"`
	HomeTeam   hkjcTeam      `json:"homeTeam"`
	AwayTeam   hkjcTeam      `json:"awayTeam"`
	Accumulate []match.Score `json:"accumulatedscore"`
}

func (t hkjcTeam) name() string {
	if t.NameCH != "" {
		return t.NameCH
	}
	return t.NameEN
}

type hkjcLine struct {
	Line string `json:"LINE"`
	High string `json:"H"`
	Low  string `json:"L"`
}

type hkjcLinePool struct {
	Lines []hkjcLine `json:"LINELIST"`
}

type hkjcOddsMatch struct {
	ID        string        `json:"matchID"`
	FirstHalf *hkjcLinePool `json:"fhlodds"`
	FullTime  *hkjcLinePool `json:"hilodds"`
}

type hkjcOddsPage struct {
	Matches []hkjcOddsMatch `json:"matches"`
}

// FetchLiveMatches reads the results feed: the in-play page first, then the
// earlier-today page.
func (h *HKJC) FetchLiveMatches(ctx context.Context) ([]match.FeedRecord, error) {
	start := time.Now()
	var pages []hkjcResultsPage
	err := h.getJSON(ctx, url.Values{"jsontype": {hkjcResultsType}}, &pages)
	h.observe("live_matches", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	if len(pages) < 2 {
		return nil, fmt.Errorf("%w: unexpected results payload with %d pages", ErrFeedUnavailable, len(pages))
	}

	records := make([]match.FeedRecord, 0, len(pages[0].Matches)+len(pages[1].Matches))
	for _, m := range append(pages[1].Matches, pages[0].Matches...) {
		records = append(records, match.FeedRecord{
			Source:   match.SourceHKJC,
			ID:       m.ID,
			HomeName: m.HomeTeam.name(),
			AwayName: m.AwayTeam.name(),
			Date:     m.Date,
			State:    m.State,
			Scores:   m.Accumulate,
		})
	}
	h.logger.Debug().Int("matches", len(records)).Msg("results feed fetched")
	return records, nil
}

// FetchLivePrice returns the over price of the tracked line, searching the
// first-half pool before the full-time one.
func (h *HKJC) FetchLivePrice(ctx context.Context, matchID string) (decimal.Decimal, error) {
	start := time.Now()
	var page hkjcOddsPage
	err := h.getJSON(ctx, url.Values{"jsontype": {hkjcAllOddsType}, "matchid": {matchID}}, &page)
	h.observe("live_price", start, err)
	if err != nil {
		return decimal.Decimal{}, err
	}

	for _, m := range page.Matches {
		if m.ID != matchID {
			continue
		}
		for _, pool := range []*hkjcLinePool{m.FirstHalf, m.FullTime} {
			if pool == nil {
				continue
			}
			for _, line := range pool.Lines {
				if line.Line != h.opts.TrackedLine {
					continue
				}
				price, parseErr := parseHKJCPrice(line.High)
				if parseErr != nil {
					return decimal.Decimal{}, fmt.Errorf("%w: match %s: %v", ErrMalformedOddsTable, matchID, parseErr)
				}
				return price, nil
			}
		}
		return decimal.Decimal{}, fmt.Errorf("%w: match %s has no %s line", ErrOddsUnavailable, matchID, h.opts.TrackedLine)
	}
	return decimal.Decimal{}, fmt.Errorf("%w: match %s not listed", ErrOddsUnavailable, matchID)
}

// parseHKJCPrice reads the "100@2.05" encoding.
func parseHKJCPrice(v string) (decimal.Decimal, error) {
	_, price, ok := strings.Cut(strings.TrimSpace(v), "@")
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price %q has no '@'", v)
	}
	return decimal.NewFromString(price)
}

var errDecode = errors.New("decode response")

// getJSON performs the request, retrying decode failures with a fixed backoff.
func (h *HKJC) getJSON(ctx context.Context, query url.Values, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= h.opts.RetryAttempts; attempt++ {
		payload, err := h.get(ctx, query)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(payload, out); err != nil {
			lastErr = fmt.Errorf("%w: %v", errDecode, err)
			h.logger.Debug().Int("attempt", attempt).Err(err).Msg("hkjc decode failed, retrying")
			if h.opts.RetryBackoff > 0 && attempt < h.opts.RetryAttempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(h.opts.RetryBackoff):
				}
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: giving up after %d attempts: %v", ErrOddsUnavailable, h.opts.RetryAttempts, lastErr)
}

func (h *HKJC) get(ctx context.Context, query url.Values) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := h.baseURL + hkjcJSONPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", h.baseURL)
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hkjc error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

func (h *HKJC) observe(op string, start time.Time, err error) {
	if h.opts.Observe != nil {
		h.opts.Observe("hkjc", op, time.Since(start), err)
	}
}

var _ LiveFeed = (*HKJC)(nil)
