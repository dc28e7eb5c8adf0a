// Package news provides news fetching from Alpaca and Google News RSS,
// normalized to domain.NewsItem.
package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockchat/internal/domain"
)

// --- HTTP client ---

var httpClient = &http.Client{Timeout: 10 * time.Second}

// --- Alpaca ---

// FetchAlpacaNews fetches the newest limit articles for symbol from the
// Alpaca marketdata API.
func FetchAlpacaNews(mdc *marketdata.Client, symbol string, limit int) ([]domain.NewsItem, error) {
	alpacaNews, err := mdc.GetNews(marketdata.GetNewsRequest{
		Symbols:    []string{symbol},
		TotalLimit: limit,
		Sort:       marketdata.SortDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("GetNews: %w", err)
	}

	items := make([]domain.NewsItem, 0, len(alpacaNews))
	for _, a := range alpacaNews {
		summary := a.Summary
		if summary == "" && a.Content != "" {
			summary = ExtractSymbolContent(a.Content, symbol)
		}
		item := domain.NewsItem{
			ID:        strconv.Itoa(a.ID),
			Title:     a.Headline,
			Publisher: a.Author,
			Link:      a.URL,
			Published: a.CreatedAt,
			Summary:   summary,
			Tickers:   a.Symbols,
			Source:    "alpaca",
		}
		if len(a.Images) > 0 {
			item.Thumbnail = a.Images[0].URL
		}
		items = append(items, item)
	}
	return items, nil
}

// --- Google News RSS ---

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	GUID    string `xml:"guid"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
	Source  string `xml:"source"`
}

// GoogleNews fetches headlines from Google News RSS.
type GoogleNews struct {
	BaseURL string
	Limit   int
}

// NewGoogleNews creates a Google News RSS fetcher returning up to limit items.
func NewGoogleNews(limit int) *GoogleNews {
	if limit <= 0 {
		limit = 8
	}
	return &GoogleNews{BaseURL: "https://news.google.com", Limit: limit}
}

// News fetches the newest headlines mentioning symbol.
func (g *GoogleNews) News(ctx context.Context, symbol string) ([]domain.NewsItem, error) {
	q := url.QueryEscape(symbol + " stock")
	u := strings.TrimRight(g.BaseURL, "/") + "/rss/search?q=" + q + "&hl=en-US&gl=US&ceid=US:en"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google news: status %d", resp.StatusCode)
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, err
	}

	var items []domain.NewsItem
	for _, it := range rss.Channel.Items {
		t, err := time.Parse(time.RFC1123Z, it.PubDate)
		if err != nil {
			t, err = time.Parse(time.RFC1123, it.PubDate)
			if err != nil {
				continue
			}
		}
		headline := it.Title
		if idx := strings.LastIndex(headline, " - "); idx > 0 {
			headline = headline[:idx]
		}
		id := it.GUID
		if id == "" {
			id = it.Link
		}
		items = append(items, domain.NewsItem{
			ID:        id,
			Title:     headline,
			Publisher: it.Source,
			Link:      it.Link,
			Published: t.UTC(),
			Summary:   StripHTML(it.Desc),
			Tickers:   []string{strings.ToUpper(symbol)},
			Source:    "google",
		})
		if len(items) == g.Limit {
			break
		}
	}
	return items, nil
}

// --- HTML helpers ---

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)
var htmlParaRe = regexp.MustCompile(`(?i)</?(p|br|div|li|h[1-6])\b[^>]*>`)

// StripHTML removes HTML tags and normalizes whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ExtractSymbolContent extracts paragraphs mentioning the symbol from HTML content.
// Falls back to full stripped HTML if no paragraphs mention the symbol.
func ExtractSymbolContent(rawHTML, symbol string) string {
	chunks := htmlParaRe.Split(rawHTML, -1)
	var matched []string
	upper := strings.ToUpper(symbol)
	for _, chunk := range chunks {
		plain := StripHTML(chunk)
		if plain == "" {
			continue
		}
		if strings.Contains(strings.ToUpper(plain), upper) {
			matched = append(matched, plain)
		}
	}
	if len(matched) > 0 {
		return strings.Join(matched, " ")
	}
	return StripHTML(rawHTML)
}
