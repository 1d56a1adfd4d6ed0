package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// XConnector searches the X (Twitter) recent-search API. Gated on a bearer
// token from the environment.
type XConnector struct {
	bearerToken string
	client      *resty.Client
}

type xSearchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			RetweetCount int `json:"retweet_count"`
			LikeCount    int `json:"like_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
}

// NewXConnector creates a new X connector.
func NewXConnector(bearerToken string) *XConnector {
	return &XConnector{
		bearerToken: bearerToken,
		client: resty.New().
			SetTimeout(20 * time.Second).
			SetHeader("User-Agent", "khabarwatch/1.0"),
	}
}

func (x *XConnector) ID() string { return "x" }

func (x *XConnector) Name() string { return "X" }

func (x *XConnector) DefaultEnabled() bool { return false }

func (x *XConnector) Capabilities() Capabilities {
	return Capabilities{
		SupportsRealtime: true,
		SupportsSearch:   true,
		LimitsNote:       "bearer-token gated; recent search covers the trailing 7 days, 100 results per query",
	}
}

func (x *XConnector) Fetch(ctx context.Context, job Job) ([]RawMention, error) {
	if x.bearerToken == "" {
		return nil, fmt.Errorf("x connector requires X_BEARER_TOKEN")
	}

	query := SearchTerms(job.Project)
	searchURL := fmt.Sprintf("https://api.twitter.com/2/tweets/search/recent?query=%s&start_time=%s&max_results=100&tweet.fields=created_at,author_id,public_metrics&expansions=author_id&user.fields=username,public_metrics",
		url.QueryEscape(query), job.From.UTC().Format(time.RFC3339))

	resp, err := x.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+x.bearerToken).
		Get(searchURL)

	if err != nil {
		return nil, fmt.Errorf("x search failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("x API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var searchResp xSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse x response: %w", err)
	}

	users := make(map[string]struct {
		username  string
		followers int
	}, len(searchResp.Includes.Users))
	for _, u := range searchResp.Includes.Users {
		users[u.ID] = struct {
			username  string
			followers int
		}{u.Username, u.PublicMetrics.FollowersCount}
	}

	var mentions []RawMention
	for _, tweet := range searchResp.Data {
		author := tweet.AuthorID
		followers := 0
		if u, ok := users[tweet.AuthorID]; ok {
			author = u.username
			followers = u.followers
		}

		mentions = append(mentions, RawMention{
			SourceID:    fmt.Sprintf("x_%s", tweet.ID),
			Text:        tweet.Text,
			Author:      author,
			URL:         fmt.Sprintf("https://x.com/i/status/%s", tweet.ID),
			PublishedAt: tweet.CreatedAt,
			Likes:       tweet.PublicMetrics.LikeCount,
			Comments:    tweet.PublicMetrics.ReplyCount,
			Shares:      tweet.PublicMetrics.RetweetCount,
			Followers:   followers,
		})
	}

	return dedupeBySourceID(mentions), nil
}
