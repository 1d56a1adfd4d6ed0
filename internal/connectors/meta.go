package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// metaPageLimit caps how many matched pages get their posts pulled per run.
const metaPageLimit = 5

// MetaConnector searches public pages through the Graph API and pulls their
// recent posts. Gated on an access token from the environment.
type MetaConnector struct {
	accessToken string
	client      *resty.Client
}

type metaPageSearchResponse struct {
	Data []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		FanCount int    `json:"fan_count"`
	} `json:"data"`
}

type metaPostsResponse struct {
	Data []struct {
		ID           string `json:"id"`
		Message      string `json:"message"`
		CreatedTime  string `json:"created_time"`
		PermalinkURL string `json:"permalink_url"`
		Shares       struct {
			Count int `json:"count"`
		} `json:"shares"`
		Reactions struct {
			Summary struct {
				TotalCount int `json:"total_count"`
			} `json:"summary"`
		} `json:"reactions"`
		Comments struct {
			Summary struct {
				TotalCount int `json:"total_count"`
			} `json:"summary"`
		} `json:"comments"`
	} `json:"data"`
}

// NewMetaConnector creates a new Meta (Facebook pages) connector.
func NewMetaConnector(accessToken string) *MetaConnector {
	return &MetaConnector{
		accessToken: accessToken,
		client: resty.New().
			SetTimeout(20 * time.Second).
			SetHeader("User-Agent", "khabarwatch/1.0"),
	}
}

func (m *MetaConnector) ID() string { return "meta" }

func (m *MetaConnector) Name() string { return "Meta Pages" }

func (m *MetaConnector) DefaultEnabled() bool { return false }

func (m *MetaConnector) Capabilities() Capabilities {
	return Capabilities{
		SupportsRealtime: false,
		SupportsSearch:   true,
		LimitsNote:       "access-token gated; page search only, posts pulled for the top matched pages",
	}
}

func (m *MetaConnector) Fetch(ctx context.Context, job Job) ([]RawMention, error) {
	if m.accessToken == "" {
		return nil, fmt.Errorf("meta connector requires META_ACCESS_TOKEN")
	}

	query := SearchTerms(job.Project)
	searchURL := fmt.Sprintf("https://graph.facebook.com/v19.0/pages/search?q=%s&fields=id,name,fan_count&access_token=%s",
		url.QueryEscape(query), url.QueryEscape(m.accessToken))

	resp, err := m.client.R().SetContext(ctx).Get(searchURL)
	if err != nil {
		return nil, fmt.Errorf("meta page search failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("meta API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var searchResp metaPageSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse meta page search response: %w", err)
	}

	pages := searchResp.Data
	if len(pages) > metaPageLimit {
		pages = pages[:metaPageLimit]
	}

	var mentions []RawMention
	for _, page := range pages {
		posts, err := m.fetchPagePosts(ctx, page.ID, page.Name, page.FanCount, job.From)
		if err != nil {
			logrus.Errorf("Failed to fetch posts for page %s: %v", page.ID, err)
			continue
		}
		mentions = append(mentions, posts...)
	}

	return dedupeBySourceID(mentions), nil
}

func (m *MetaConnector) fetchPagePosts(ctx context.Context, pageID, pageName string, fanCount int, from time.Time) ([]RawMention, error) {
	postsURL := fmt.Sprintf("https://graph.facebook.com/v19.0/%s/posts?fields=message,created_time,permalink_url,shares,reactions.summary(true),comments.summary(true)&since=%d&access_token=%s",
		pageID, from.Unix(), url.QueryEscape(m.accessToken))

	resp, err := m.client.R().SetContext(ctx).Get(postsURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("meta posts API returned status %d", resp.StatusCode())
	}

	var postsResp metaPostsResponse
	if err := json.Unmarshal(resp.Body(), &postsResp); err != nil {
		return nil, fmt.Errorf("failed to parse meta posts response: %w", err)
	}

	var mentions []RawMention
	for _, post := range postsResp.Data {
		if post.Message == "" {
			continue
		}

		mentions = append(mentions, RawMention{
			SourceID:    fmt.Sprintf("meta_%s", post.ID),
			Text:        post.Message,
			Author:      pageName,
			URL:         post.PermalinkURL,
			PublishedAt: post.CreatedTime,
			Likes:       post.Reactions.Summary.TotalCount,
			Comments:    post.Comments.Summary.TotalCount,
			Shares:      post.Shares.Count,
			Followers:   fanCount,
		})
	}

	return mentions, nil
}
