package connectors

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// RSSConnector polls a fixed set of local-news feeds. It is an aggregator:
// a feed that errors is skipped as long as at least one item was produced
// overall; only a total failure across every feed is a hard error.
type RSSConnector struct {
	feeds  []string
	client *resty.Client
}

type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Author      string `xml:"author"`
	Creator     string `xml:"creator"` // dc:creator
}

// NewRSSConnector creates the local-news aggregator over the given feeds.
func NewRSSConnector(feeds []string) *RSSConnector {
	return &RSSConnector{
		feeds:  feeds,
		client: resty.New().SetTimeout(20 * time.Second).SetHeader("User-Agent", "khabarwatch/1.0"),
	}
}

func (r *RSSConnector) ID() string { return "rss" }

func (r *RSSConnector) Name() string { return "Local News" }

func (r *RSSConnector) DefaultEnabled() bool { return true }

func (r *RSSConnector) Capabilities() Capabilities {
	return Capabilities{
		SupportsRealtime: false,
		SupportsSearch:   false,
		LimitsNote:       "fixed feed list, no keyword search; filtering happens downstream",
	}
}

func (r *RSSConnector) Fetch(ctx context.Context, job Job) ([]RawMention, error) {
	var allMentions []RawMention
	var errs []string

	for _, feedURL := range r.feeds {
		mentions, err := r.fetchFeed(ctx, feedURL)
		if err != nil {
			logrus.Errorf("Failed to fetch feed %s: %v", feedURL, err)
			errs = append(errs, fmt.Sprintf("%s: %v", feedURL, err))
			continue
		}
		allMentions = append(allMentions, mentions...)
	}

	if len(allMentions) == 0 && len(errs) == len(r.feeds) && len(r.feeds) > 0 {
		return nil, fmt.Errorf("all %d news feeds failed: %s", len(r.feeds), strings.Join(errs, "; "))
	}

	return dedupeBySourceID(allMentions), nil
}

func (r *RSSConnector) fetchFeed(ctx context.Context, feedURL string) ([]RawMention, error) {
	resp, err := r.client.R().SetContext(ctx).Get(feedURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode())
	}

	return parseRSS(resp.Body())
}

func parseRSS(data []byte) ([]RawMention, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var mentions []RawMention
	for _, item := range root.Channel.Items {
		sourceID := strings.TrimSpace(item.GUID)
		if sourceID == "" {
			sourceID = strings.TrimSpace(item.Link)
		}
		if sourceID == "" {
			continue
		}

		author := strings.TrimSpace(item.Author)
		if author == "" {
			author = strings.TrimSpace(item.Creator)
		}
		if author == "" {
			author = strings.TrimSpace(root.Channel.Title)
		}

		mentions = append(mentions, RawMention{
			SourceID:    sourceID,
			Title:       strings.TrimSpace(item.Title),
			Text:        strings.TrimSpace(item.Description),
			Author:      author,
			URL:         strings.TrimSpace(item.Link),
			PublishedAt: strings.TrimSpace(item.PubDate),
		})
	}

	return mentions, nil
}
