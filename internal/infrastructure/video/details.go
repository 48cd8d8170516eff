package video

import (
	"context"
	"fmt"

	"github.com/kkdai/youtube/v2"

	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/ports"
)

// Details reads public video metadata from the watch page.
type Details struct {
	client youtube.Client
}

var _ ports.VideoDetails = (*Details)(nil)

// NewDetails creates a metadata reader with a default client.
func NewDetails() *Details {
	return &Details{client: youtube.Client{}}
}

// Lookup returns duration, view count and channel for videoID.
func (d *Details) Lookup(ctx context.Context, videoID string) (domain.Video, error) {
	v, err := d.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return domain.Video{}, fmt.Errorf("video details %s: %w", videoID, err)
	}
	return domain.Video{
		ID:       v.ID,
		Title:    v.Title,
		Channel:  v.Author,
		Duration: v.Duration,
		Views:    v.Views,
	}, nil
}
