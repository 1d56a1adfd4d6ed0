package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// RedditConnector searches Reddit's public JSON endpoint. No credentials
// required, so it is enabled by default.
type RedditConnector struct {
	client *resty.Client
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// NewRedditConnector creates a new Reddit connector.
func NewRedditConnector() *RedditConnector {
	return &RedditConnector{
		client: resty.New().
			SetTimeout(20 * time.Second).
			SetHeader("User-Agent", "khabarwatch/1.0"),
	}
}

func (r *RedditConnector) ID() string { return "reddit" }

func (r *RedditConnector) Name() string { return "Reddit" }

func (r *RedditConnector) DefaultEnabled() bool { return true }

func (r *RedditConnector) Capabilities() Capabilities {
	return Capabilities{
		SupportsRealtime: false,
		SupportsSearch:   true,
		LimitsNote:       "public search endpoint, 100 results per query, sorted by newest",
	}
}

func (r *RedditConnector) Fetch(ctx context.Context, job Job) ([]RawMention, error) {
	query := SearchTerms(job.Project)
	searchURL := fmt.Sprintf("https://www.reddit.com/search.json?q=%s&sort=new&limit=100",
		url.QueryEscape(query))

	resp, err := r.client.R().SetContext(ctx).Get(searchURL)
	if err != nil {
		return nil, fmt.Errorf("reddit search failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("reddit API returned status %d", resp.StatusCode())
	}

	var searchResp redditSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse reddit response: %w", err)
	}

	var mentions []RawMention
	for _, child := range searchResp.Data.Children {
		post := child.Data
		createdAt := time.Unix(int64(post.Created), 0).UTC()

		// Skip posts outside the fetch window.
		if !job.From.IsZero() && createdAt.Before(job.From) {
			continue
		}

		mentions = append(mentions, RawMention{
			SourceID:    fmt.Sprintf("reddit_%s", post.ID),
			Title:       post.Title,
			Text:        post.Selftext,
			Author:      post.Author,
			URL:         fmt.Sprintf("https://reddit.com%s", post.Permalink),
			PublishedAt: createdAt.Format(time.RFC3339),
			Likes:       post.Score,
			Comments:    post.NumComments,
		})
	}

	return dedupeBySourceID(mentions), nil
}
