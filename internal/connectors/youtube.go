package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// YouTubeConnector searches the YouTube Data API. Fetching is two-stage:
// a snippet search, then a batched statistics lookup joined by video id.
type YouTubeConnector struct {
	apiKey string
	client *resty.Client
}

type youTubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type youTubeVideosResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// NewYouTubeConnector creates a new YouTube connector.
func NewYouTubeConnector(apiKey string) *YouTubeConnector {
	return &YouTubeConnector{
		apiKey: apiKey,
		client: resty.New().
			SetTimeout(20 * time.Second).
			SetHeader("User-Agent", "khabarwatch/1.0"),
	}
}

func (y *YouTubeConnector) ID() string { return "youtube" }

func (y *YouTubeConnector) Name() string { return "YouTube" }

func (y *YouTubeConnector) DefaultEnabled() bool { return false }

func (y *YouTubeConnector) Capabilities() Capabilities {
	return Capabilities{
		SupportsRealtime: false,
		SupportsSearch:   true,
		LimitsNote:       "API-key gated; search quota is expensive, capped at 25 results per run",
	}
}

func (y *YouTubeConnector) Fetch(ctx context.Context, job Job) ([]RawMention, error) {
	if y.apiKey == "" {
		return nil, fmt.Errorf("youtube connector requires YOUTUBE_API_KEY")
	}

	query := SearchTerms(job.Project)
	searchURL := fmt.Sprintf("https://www.googleapis.com/youtube/v3/search?part=snippet&q=%s&type=video&publishedAfter=%s&maxResults=25&key=%s",
		url.QueryEscape(query), job.From.UTC().Format(time.RFC3339), y.apiKey)

	resp, err := y.client.R().SetContext(ctx).Get(searchURL)
	if err != nil {
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("youtube API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var searchResp youTubeSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse youtube search response: %w", err)
	}

	if len(searchResp.Items) == 0 {
		return nil, nil
	}

	var videoIDs []string
	for _, item := range searchResp.Items {
		if item.ID.VideoID != "" {
			videoIDs = append(videoIDs, item.ID.VideoID)
		}
	}

	stats, err := y.fetchStatistics(ctx, videoIDs)
	if err != nil {
		return nil, err
	}

	var mentions []RawMention
	for _, item := range searchResp.Items {
		videoID := item.ID.VideoID
		if videoID == "" {
			continue
		}

		st := stats[videoID]
		mentions = append(mentions, RawMention{
			SourceID:    fmt.Sprintf("youtube_%s", videoID),
			Title:       item.Snippet.Title,
			Text:        item.Snippet.Description,
			Author:      item.Snippet.ChannelTitle,
			URL:         fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID),
			PublishedAt: item.Snippet.PublishedAt,
			Likes:       st.likes,
			Comments:    st.comments,
		})
	}

	return dedupeBySourceID(mentions), nil
}

type videoStats struct {
	likes    int
	comments int
}

func (y *YouTubeConnector) fetchStatistics(ctx context.Context, videoIDs []string) (map[string]videoStats, error) {
	videosURL := fmt.Sprintf("https://www.googleapis.com/youtube/v3/videos?part=statistics&id=%s&key=%s",
		strings.Join(videoIDs, ","), y.apiKey)

	resp, err := y.client.R().SetContext(ctx).Get(videosURL)
	if err != nil {
		return nil, fmt.Errorf("youtube statistics lookup failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("youtube videos API returned status %d", resp.StatusCode())
	}

	var videosResp youTubeVideosResponse
	if err := json.Unmarshal(resp.Body(), &videosResp); err != nil {
		return nil, fmt.Errorf("failed to parse youtube videos response: %w", err)
	}

	stats := make(map[string]videoStats, len(videosResp.Items))
	for _, item := range videosResp.Items {
		likes, _ := strconv.Atoi(item.Statistics.LikeCount)
		comments, _ := strconv.Atoi(item.Statistics.CommentCount)
		stats[item.ID] = videoStats{likes: likes, comments: comments}
	}

	return stats, nil
}
