package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"goalline-alerts/internal/match"
)

const (
	defaultListingBase = "http://g10oal.com"
	listingLivePath    = "/live"
	listingOddsPath    = "/match/%s/odds"

	firstHalfAnchor = "fhl"
	fullTimeAnchor  = "hil"
)

// ListingOptions parameterise the HTML listing client.
type ListingOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	Observe   ObserveFunc
}

// Listing scrapes the public match listing: live cards, pre-match goal-line
// tables and final scores.
type Listing struct {
	opts    ListingOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewListing constructs the client.
func NewListing(opts ListingOptions, logger zerolog.Logger) *Listing {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
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
		baseURL = defaultListingBase
	}

	return &Listing{
		opts:    opts,
		logger:  logger.With().Str("component", "listing_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		baseURL: baseURL,
	}
}

// FetchLiveMatches parses the live listing cards.
func (l *Listing) FetchLiveMatches(ctx context.Context) ([]match.FeedRecord, error) {
	start := time.Now()
	doc, err := l.fetchDocument(ctx, listingLivePath)
	l.observe("live_matches", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	cards := findAll(doc, byTagClass("", "card-body"))
	records := make([]match.FeedRecord, 0, len(cards))
	for _, card := range cards {
		records = append(records, parseListingCard(card))
	}
	l.logger.Debug().Int("matches", len(records)).Msg("live listing fetched")
	return records, nil
}

// parseListingCard extracts what it can; validation happens in the normalizer.
func parseListingCard(card *html.Node) match.FeedRecord {
	rec := match.FeedRecord{Source: match.SourceListing}

	rec.HomeName = teamName(textContent(findFirst(card, byTagClass("div", "text-right"))))
	rec.AwayName = teamName(textContent(findFirst(card, byTagClass("div", "text-left"))))
	if link := findFirst(card, func(n *html.Node) bool { return n.Data == "a" && attr(n, "href") != "" }); link != nil {
		rec.ID = matchIDFromHref(attr(link, "href"))
	}
	if h6 := findFirst(card, byTagClass("h6", "text-muted")); h6 != nil {
		if fields := strings.Fields(textContent(findFirst(h6, byTagClass("small", "")))); len(fields) > 0 {
			rec.Date = fields[0]
		}
	}

	center := findFirst(card, byTagClass("", "text-center"))
	if center == nil {
		return rec
	}
	if strings.Contains(textContent(center), "未開賽") {
		rec.Upcoming = true
		return rec
	}

	badge := findFirst(card, byTagClass("span", "badge-danger"))
	rec.LiveBadge = badge != nil && strings.Contains(textContent(badge), "即場")
	rec.ScoreText = textContent(findFirst(center, byTagClass("div", "lead")))
	rec.Clock = clockText(textContent(findFirst(center, byTagClass("", "text-danger"))))
	return rec
}

// teamName drops the card-count digits printed next to team names.
func teamName(v string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r >= '1' && r <= '7' {
			return -1
		}
		return r
	}, v))
}

func matchIDFromHref(href string) string {
	rest := strings.TrimPrefix(href, "/match/")
	if rest == href {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

// clockText strips the period label in front of the minute.
func clockText(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "半場") || strings.EqualFold(v, "HT") {
		return v
	}
	for i, r := range v {
		if unicode.IsDigit(r) {
			return v[i:]
		}
	}
	return v
}

// FetchPrematchOdds reads both goal-line tables of the match odds page.
func (l *Listing) FetchPrematchOdds(ctx context.Context, matchID string) (PrematchOdds, error) {
	start := time.Now()
	doc, err := l.fetchDocument(ctx, fmt.Sprintf(listingOddsPath, matchID))
	l.observe("prematch_odds", start, err)
	if err != nil {
		return PrematchOdds{}, fmt.Errorf("%w: %v", ErrOddsUnavailable, err)
	}
	return parsePrematchOdds(doc)
}

func parsePrematchOdds(doc *html.Node) (PrematchOdds, error) {
	ht, err := parseGoalLineTable(doc, firstHalfAnchor)
	if err != nil {
		return PrematchOdds{}, err
	}
	ft, err := parseGoalLineTable(doc, fullTimeAnchor)
	if err != nil {
		return PrematchOdds{}, err
	}
	return PrematchOdds{HT: ht, FT: ft}, nil
}

// parseGoalLineTable picks the line whose over/under prices are closest. Later
// rows for the chosen line carry the price history and set the direction.
func parseGoalLineTable(doc *html.Node, anchor string) (LineQuote, error) {
	a := findFirst(doc, func(n *html.Node) bool { return n.Data == "a" && attr(n, "name") == anchor })
	if a == nil {
		return LineQuote{}, fmt.Errorf("%w: anchor %q missing", ErrMalformedOddsTable, anchor)
	}
	table := nextElement(a, func(n *html.Node) bool { return n.Data == "table" })
	if table == nil {
		return LineQuote{}, fmt.Errorf("%w: table after %q missing", ErrMalformedOddsTable, anchor)
	}
	body := findFirst(table, byTagClass("tbody", ""))
	if body == nil {
		body = table
	}

	var (
		chosen    *LineQuote
		minSpread decimal.Decimal
	)
	for _, row := range findAll(body, byTagClass("tr", "")) {
		if hasClass(row, "table-secondary") {
			continue
		}
		cells := findAll(row, byTagClass("td", "text-center"))
		if len(cells) < 2 {
			continue
		}
		line := textContent(cells[1])
		high, err := decimal.NewFromString(textContent(cells[0]))
		if err != nil {
			return LineQuote{}, fmt.Errorf("%w: %s over price: %v", ErrMalformedOddsTable, anchor, err)
		}

		if chosen != nil && chosen.GoalLine == line {
			switch chosen.Price.Cmp(high) {
			case 1:
				chosen.Direction = match.DirectionRising
			case -1:
				chosen.Direction = match.DirectionFalling
			}
			continue
		}

		if len(cells) < 3 {
			continue
		}
		low, err := decimal.NewFromString(textContent(cells[2]))
		if err != nil {
			return LineQuote{}, fmt.Errorf("%w: %s under price: %v", ErrMalformedOddsTable, anchor, err)
		}
		spread := high.Sub(low).Abs()
		if chosen == nil || spread.LessThan(minSpread) {
			minSpread = spread
			chosen = &LineQuote{GoalLine: line, Price: high}
		}
	}

	if chosen == nil {
		return LineQuote{}, fmt.Errorf("%w: %s table empty", ErrMalformedOddsTable, anchor)
	}
	return *chosen, nil
}

// FetchFinalResult reads the score board of a finished match.
func (l *Listing) FetchFinalResult(ctx context.Context, matchID string) (FinalResult, error) {
	start := time.Now()
	doc, err := l.fetchDocument(ctx, fmt.Sprintf(listingOddsPath, matchID))
	l.observe("final_result", start, err)
	if err != nil {
		return FinalResult{}, fmt.Errorf("%w: %v", ErrResultUnavailable, err)
	}
	return parseFinalResult(doc)
}

func parseFinalResult(doc *html.Node) (FinalResult, error) {
	boards := findAll(doc, func(n *html.Node) bool {
		return n.Data == "div" && attr(n, "class") == "text-center"
	})
	if len(boards) < 2 {
		return FinalResult{}, fmt.Errorf("%w: score board missing", ErrResultUnavailable)
	}
	board := boards[1]
	text := textContent(board)
	if !strings.Contains(text, "場已完") && !strings.Contains(text, "FT 90") {
		return FinalResult{}, ErrResultUnavailable
	}

	ft, err := sumGoals(textContent(findFirst(board, byTagClass("div", "lead"))))
	if err != nil {
		return FinalResult{}, fmt.Errorf("%w: full-time score: %v", ErrResultUnavailable, err)
	}
	var htText string
	if muted := findFirst(board, byTagClass("", "text-muted")); muted != nil {
		htText = textContent(findFirst(muted, byTagClass("small", "")))
	}
	ht, err := sumGoals(htText)
	if err != nil {
		return FinalResult{}, fmt.Errorf("%w: half-time score: %v", ErrResultUnavailable, err)
	}
	return FinalResult{HTGoals: ht, FTGoals: ft}, nil
}

// sumGoals reads "2-1" or "(1-0)" as a goal total.
func sumGoals(v string) (int, error) {
	v = strings.NewReplacer("(", "", ")", "").Replace(strings.TrimSpace(v))
	if v == "" {
		return 0, fmt.Errorf("empty score")
	}
	total := 0
	for _, part := range strings.Split(v, "-") {
		goals, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0, fmt.Errorf("score %q: %w", v, err)
		}
		total += goals
	}
	return total, nil
}

func (l *Listing) fetchDocument(ctx context.Context, path string) (*html.Node, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Referer", l.baseURL)
	if ua := strings.TrimSpace(l.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("listing error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func (l *Listing) observe(op string, start time.Time, err error) {
	if l.opts.Observe != nil {
		l.opts.Observe("listing", op, time.Since(start), err)
	}
}

var _ LiveFeed = (*Listing)(nil)
