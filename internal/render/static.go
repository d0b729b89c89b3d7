package render

import (
	"context"

	"github.com/answerscope/answerscope/internal/fetch"
)

// StaticStrategy fetches raw HTML without JavaScript execution. Always
// available; the last rung of the cascade.
type StaticStrategy struct {
	client *fetch.Client
}

// NewStaticStrategy creates the static fetch strategy.
func NewStaticStrategy(client *fetch.Client) *StaticStrategy {
	return &StaticStrategy{client: client}
}

// Name implements Strategy.
func (s *StaticStrategy) Name() string { return "static" }

// Available implements Strategy.
func (s *StaticStrategy) Available() bool { return true }

// Render implements Strategy.
func (s *StaticStrategy) Render(ctx context.Context, url, userAgent string) (*Snapshot, error) {
	res, err := s.client.GetWithRetry(ctx, url, userAgent)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		URL:        url,
		FinalURL:   res.FinalURL,
		StatusCode: res.StatusCode,
		HTML:       res.Body,
		LoadTime:   res.Duration,
	}, nil
}
