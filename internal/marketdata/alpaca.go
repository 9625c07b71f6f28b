package marketdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"basketbot-go/internal/config"
)

const defaultDataBaseURL = "https://data.alpaca.markets"

// AlpacaBars pulls historical close bars from the Alpaca data REST API.
type AlpacaBars struct {
	client *resty.Client
	feed   string
	log    zerolog.Logger
}

// AlpacaBarsOption configures the historical client.
type AlpacaBarsOption func(*AlpacaBars)

// WithDataBaseURL overrides the API host, mainly for tests.
func WithDataBaseURL(url string) AlpacaBarsOption {
	return func(a *AlpacaBars) {
		a.client.SetBaseURL(strings.TrimSuffix(url, "/"))
	}
}

// WithFeed selects the market data feed (iex, sip).
func WithFeed(feed string) AlpacaBarsOption {
	return func(a *AlpacaBars) {
		if feed != "" {
			a.feed = feed
		}
	}
}

// NewAlpacaBars builds the client from injected credentials.
func NewAlpacaBars(creds config.Credentials, log zerolog.Logger, opts ...AlpacaBarsOption) *AlpacaBars {
	client := resty.New().
		SetBaseURL(defaultDataBaseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("APCA-API-KEY-ID", creds.APIKey).
		SetHeader("APCA-API-SECRET-KEY", creds.APISecret)
	a := &AlpacaBars{client: client, feed: "iex", log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type alpacaBar struct {
	T time.Time `json:"t"`
	C float64   `json:"c"`
}

type alpacaBarsResponse struct {
	Bars          map[string][]alpacaBar `json:"bars"`
	NextPageToken *string                `json:"next_page_token"`
}

// GetBars fetches closes for all symbols between start and end, following
// pagination, and assembles them into a wide matrix with NaN gaps.
func (a *AlpacaBars) GetBars(ctx context.Context, symbols []string, start, end time.Time, timeframe string) (*Matrix, error) {
	byTime := make(map[int64]map[string]float64)
	pageToken := ""

	for {
		var body alpacaBarsResponse
		req := a.client.R().
			SetContext(ctx).
			SetQueryParam("symbols", strings.Join(symbols, ",")).
			SetQueryParam("timeframe", timeframe).
			SetQueryParam("start", start.UTC().Format(time.RFC3339)).
			SetQueryParam("end", end.UTC().Format(time.RFC3339)).
			SetQueryParam("feed", a.feed).
			SetQueryParam("limit", "10000").
			SetResult(&body)
		if pageToken != "" {
			req.SetQueryParam("page_token", pageToken)
		}
		resp, err := req.Get("/v2/stocks/bars")
		if err != nil {
			return nil, fmt.Errorf("fetch bars: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch bars: status %d: %s", resp.StatusCode(), resp.String())
		}

		for sym, bars := range body.Bars {
			for _, b := range bars {
				key := b.T.UnixNano()
				row := byTime[key]
				if row == nil {
					row = make(map[string]float64, len(symbols))
					byTime[key] = row
				}
				row[sym] = b.C
			}
		}
		if body.NextPageToken == nil || *body.NextPageToken == "" {
			break
		}
		pageToken = *body.NextPageToken
	}

	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	m := &Matrix{
		Times: make([]time.Time, len(keys)),
		Close: make(map[string][]float64, len(symbols)),
	}
	for _, sym := range symbols {
		series := make([]float64, len(keys))
		for i := range series {
			series[i] = math.NaN()
		}
		m.Close[sym] = series
	}
	for i, k := range keys {
		m.Times[i] = time.Unix(0, k).UTC()
		for sym, px := range byTime[k] {
			if series, ok := m.Close[sym]; ok {
				series[i] = px
			}
		}
	}
	a.log.Debug().Int("rows", m.Len()).Strs("symbols", symbols).Msg("fetched historical bars")
	return m, nil
}
