package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// maxModelChars caps how much text is sent to the sentiment model.
const maxModelChars = 512

// Sentiment is a label with a confidence in [0,1].
type Sentiment struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// SentimentClassifier infers a sentiment for a text span, falling back to a
// lexicon heuristic when the multilingual model is unavailable. The model
// client is constructed lazily once per process and reused.
type SentimentClassifier struct {
	apiURL   string
	apiToken string

	once  sync.Once
	model *sentimentModel
}

// NewSentimentClassifier creates a classifier. An empty apiURL means no
// model is configured and every call uses the lexicon fallback.
func NewSentimentClassifier(apiURL, apiToken string) *SentimentClassifier {
	return &SentimentClassifier{apiURL: apiURL, apiToken: apiToken}
}

// InferSentiment classifies text. Empty or whitespace-only text returns
// {neutral, 0} without touching the model.
func (c *SentimentClassifier) InferSentiment(ctx context.Context, text string) Sentiment {
	if strings.TrimSpace(text) == "" {
		return Sentiment{Label: "neutral", Confidence: 0}
	}

	if runes := []rune(text); len(runes) > maxModelChars {
		text = string(runes[:maxModelChars])
	}

	c.once.Do(func() {
		if c.apiURL != "" {
			c.model = newSentimentModel(c.apiURL, c.apiToken)
		}
	})

	if c.model != nil {
		sentiment, err := c.model.classify(ctx, text)
		if err == nil {
			return sentiment
		}
		logrus.Warnf("Sentiment model call failed, using lexicon fallback: %v", err)
	}

	return lexiconSentiment(text)
}

var (
	positiveCues = []string{"good", "great", "excellent", "love", "best", "awesome", "amazing", "happy", "thanks", "helpful"}
	negativeCues = []string{"bad", "terrible", "awful", "hate", "worst", "broken", "scam", "angry", "problem", "fail"}
)

// lexiconSentiment is the deterministic fallback: presence of lexical cues
// produces a fixed low-confidence label.
func lexiconSentiment(text string) Sentiment {
	lowered := strings.ToLower(text)

	positive := 0
	for _, cue := range positiveCues {
		if strings.Contains(lowered, cue) {
			positive++
		}
	}

	negative := 0
	for _, cue := range negativeCues {
		if strings.Contains(lowered, cue) {
			negative++
		}
	}

	switch {
	case positive > negative:
		return Sentiment{Label: "positive", Confidence: 0.6}
	case negative > positive:
		return Sentiment{Label: "negative", Confidence: 0.6}
	default:
		return Sentiment{Label: "neutral", Confidence: 0.2}
	}
}

// sentimentModel calls a hosted multilingual sentiment inference endpoint.
type sentimentModel struct {
	apiURL   string
	apiToken string
	client   *resty.Client
}

type sentimentResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func newSentimentModel(apiURL, apiToken string) *sentimentModel {
	return &sentimentModel{
		apiURL:   apiURL,
		apiToken: apiToken,
		client:   resty.New().SetTimeout(10 * time.Second),
	}
}

func (m *sentimentModel) classify(ctx context.Context, text string) (Sentiment, error) {
	req := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"text": text})

	if m.apiToken != "" {
		req.SetHeader("Authorization", "Bearer "+m.apiToken)
	}

	resp, err := req.Post(m.apiURL)
	if err != nil {
		return Sentiment{}, err
	}

	if resp.StatusCode() != 200 {
		return Sentiment{}, fmt.Errorf("sentiment API returned status %d", resp.StatusCode())
	}

	var out sentimentResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Sentiment{}, fmt.Errorf("failed to parse sentiment response: %w", err)
	}

	label := strings.ToLower(out.Label)
	if label != "positive" && label != "negative" && label != "neutral" {
		return Sentiment{}, fmt.Errorf("sentiment API returned unknown label %q", out.Label)
	}

	if out.Score < 0 || out.Score > 1 {
		return Sentiment{}, fmt.Errorf("sentiment API returned score %v outside [0,1]", out.Score)
	}

	return Sentiment{Label: label, Confidence: out.Score}, nil
}
