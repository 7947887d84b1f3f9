package service

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"currencyapi/config"
	"currencyapi/internal/model"

	"golang.org/x/net/html/charset"
)

// ErrUpstreamFetch the feed could not be retrieved; the run writes nothing
var ErrUpstreamFetch = errors.New("feed fetch failed")

// Snapshot one day of the central bank feed, stored in the shape the
// feed itself has so the file stays readable by other tools.
type Snapshot struct {
	ValCurs ValCurs `json:"ValCurs"`
}

// ValCurs feed root
type ValCurs struct {
	XMLName xml.Name `json:"-" xml:"ValCurs"`
	Date    string   `json:"@Date" xml:"Date,attr"`
	Name    string   `json:"@name" xml:"name,attr"`
	Valute  []Valute `json:"Valute" xml:"Valute"`
}

// Valute one currency row; numbers keep the feed's comma decimals
type Valute struct {
	ID        string `json:"@ID,omitempty" xml:"ID,attr"`
	NumCode   string `json:"NumCode" xml:"NumCode"`
	CharCode  string `json:"CharCode" xml:"CharCode"`
	Nominal   string `json:"Nominal" xml:"Nominal"`
	Name      string `json:"Name" xml:"Name"`
	Value     string `json:"Value" xml:"Value"`
	VunitRate string `json:"VunitRate" xml:"VunitRate"`
}

// FeedDateLayout date format of the ValCurs Date attribute
const FeedDateLayout = "02.01.2006"

// Day parses the feed date as a calendar day in MSK
func (s *Snapshot) Day() (time.Time, error) {
	day, err := time.ParseInLocation(FeedDateLayout, s.ValCurs.Date, model.MSK)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: feed date %q: %v", ErrMalformedFeed, s.ValCurs.Date, err)
	}
	return day, nil
}

// Fetcher retrieves a feed snapshot
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// FeedClient downloads the daily feed, through a proxy when configured
type FeedClient struct {
	url       string
	userAgent string
	client    *http.Client
}

// NewFeedClient builds the client from config. The proxy was validated
// when config was loaded; an empty value means a direct connection.
func NewFeedClient(cfg config.FeedConfig) (*FeedClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &FeedClient{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// Fetch performs a single GET. Any transport error or non-200 status
// is reported as ErrUpstreamFetch; there is no retry.
func (c *FeedClient) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamFetch, resp.StatusCode)
	}

	snapshot, err := decodeFeed(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}

	slog.Info("feed fetched",
		"date", snapshot.ValCurs.Date,
		"rows", len(snapshot.ValCurs.Valute))
	return snapshot, nil
}

func decodeFeed(body io.Reader, contentType string) (*Snapshot, error) {
	if strings.Contains(contentType, "json") {
		var snapshot Snapshot
		if err := json.NewDecoder(body).Decode(&snapshot); err != nil {
			return nil, fmt.Errorf("decode json feed: %w", err)
		}
		return &snapshot, nil
	}

	// the feed is windows-1251 encoded
	dec := xml.NewDecoder(body)
	dec.CharsetReader = charset.NewReaderLabel

	var snapshot Snapshot
	if err := dec.Decode(&snapshot.ValCurs); err != nil {
		return nil, fmt.Errorf("decode xml feed: %w", err)
	}
	return &snapshot, nil
}
