package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Payload is the source-specific items carried by an Ok result.
// HasData is the source's own emptiness rule.
type Payload interface {
	Source() SourceName
	ItemCount() int
	HasData() bool
}

// MinBrandMessaging is the length a brand-messaging string must exceed to count as data.
const MinBrandMessaging = 10

// WebsiteExtraction is the structured extraction of the target's own pages.
type WebsiteExtraction struct {
	Reviews           []string `json:"reviews"`
	Features          []string `json:"features"`
	ValuePropositions []string `json:"value_propositions"`
	PainPoints        []string `json:"pain_points"`
	Testimonials      []string `json:"testimonials"`
	CustomerLanguage  []string `json:"customer_language"`
	BrandMessaging    string   `json:"brand_messaging"`
	Pages             []string `json:"pages,omitempty"`
}

func (w WebsiteExtraction) Source() SourceName { return SourceWebsite }

func (w WebsiteExtraction) lists() [][]string {
	return [][]string{w.Reviews, w.Features, w.ValuePropositions, w.PainPoints, w.Testimonials, w.CustomerLanguage}
}

func (w WebsiteExtraction) hasBrandMessaging() bool {
	return len(strings.TrimSpace(w.BrandMessaging)) > MinBrandMessaging
}

// ItemCount counts list entries plus one for usable brand messaging.
func (w WebsiteExtraction) ItemCount() int {
	n := 0
	for _, l := range w.lists() {
		n += len(l)
	}
	if w.hasBrandMessaging() {
		n++
	}
	return n
}

func (w WebsiteExtraction) HasData() bool {
	for _, l := range w.lists() {
		if len(l) > 0 {
			return true
		}
	}
	return w.hasBrandMessaging()
}

// ExtractionStatus distinguishes a run that found reviews from one that found none.
type ExtractionStatus string

const (
	ExtractionSuccess   ExtractionStatus = "success"
	ExtractionNoReviews ExtractionStatus = "no_reviews_found"
)

// Review is one customer review.
type Review struct {
	ID         string    `json:"id"`
	Site       string    `json:"site"`
	Competitor bool      `json:"competitor,omitempty"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	Rating     float64   `json:"rating"`
	Verified   bool      `json:"verified"`
	Author     string    `json:"author,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
}

// ReviewCollection is the reviews source payload.
type ReviewCollection struct {
	Reviews []Review         `json:"reviews"`
	Status  ExtractionStatus `json:"status"`
}

// NewReviewCollection derives the extraction status from the reviews themselves.
func NewReviewCollection(reviews []Review) ReviewCollection {
	status := ExtractionSuccess
	if len(reviews) == 0 {
		status = ExtractionNoReviews
	}
	return ReviewCollection{Reviews: reviews, Status: status}
}

func (c ReviewCollection) Source() SourceName { return SourceReviews }
func (c ReviewCollection) ItemCount() int     { return len(c.Reviews) }
func (c ReviewCollection) HasData() bool {
	return len(c.Reviews) > 0 && c.Status == ExtractionSuccess
}

// SocialItem is a discussion post or a top-level comment on one.
type SocialItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Forum     string    `json:"forum"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Score     int       `json:"score"`
	Comments  int       `json:"comments,omitempty"`
	URL       string    `json:"url"`
	Query     string    `json:"query,omitempty"`
	Relevance float64   `json:"relevance"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SocialCollection is the social source payload.
type SocialCollection struct {
	Posts    []SocialItem `json:"posts"`
	Comments []SocialItem `json:"comments"`
}

func (c SocialCollection) Source() SourceName { return SourceSocial }
func (c SocialCollection) ItemCount() int     { return len(c.Posts) + len(c.Comments) }
func (c SocialCollection) HasData() bool      { return c.ItemCount() > 0 }

// Video describes one searched video.
type Video struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Channel  string        `json:"channel"`
	Keyword  string        `json:"keyword"`
	Duration time.Duration `json:"duration,omitempty"`
	Views    int           `json:"views,omitempty"`
}

// VideoComment is a scored, emotion-tagged comment.
type VideoComment struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	VideoTitle  string    `json:"video_title"`
	Text        string    `json:"text"`
	Author      string    `json:"author"`
	Likes       int       `json:"likes"`
	Replies     int       `json:"replies"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Keyword     string    `json:"keyword"`
	Relevance   float64   `json:"relevance"`
	Emotion     string    `json:"emotion"`
	Intensity   float64   `json:"intensity"`
}

// VideoCollection is the video source payload.
type VideoCollection struct {
	Videos   []Video        `json:"videos"`
	Comments []VideoComment `json:"comments"`
}

func (c VideoCollection) Source() SourceName { return SourceVideo }
func (c VideoCollection) ItemCount() int     { return len(c.Comments) }
func (c VideoCollection) HasData() bool      { return len(c.Comments) > 0 }

// Markers that flag a generated narrative as unusable.
const (
	MarkerInsufficientData = "INSUFFICIENT_DATA"
	MarkerGenerationFailed = "GENERATION_FAILED"
)

var failureMarkers = []string{MarkerInsufficientData, MarkerGenerationFailed, `"error":`}

// MinNarrative is the length a narrative must exceed to count as data.
const MinNarrative = 100

// Demographics is the inferred audience profile.
type Demographics struct {
	AgeRange   string `json:"age_range"`
	Gender     string `json:"gender"`
	Location   string `json:"location"`
	Income     string `json:"income"`
	Education  string `json:"education"`
	Occupation string `json:"occupation"`
}

// Quote is a verbatim excerpt cited by reference tag.
type Quote struct {
	Text      string `json:"text"`
	Reference string `json:"reference"`
	Theme     string `json:"theme,omitempty"`
}

// Persona is the fixed-shape output of the synthesis step.
type Persona struct {
	Name           string       `json:"name"`
	Demographics   Demographics `json:"demographics"`
	Psychographics []string     `json:"psychographics"`
	PainPoints     []string     `json:"pain_points"`
	Motivations    []string     `json:"motivations"`
	Quotes         []Quote      `json:"quotes"`
	Narrative      string       `json:"narrative"`
	Confidence     float64      `json:"confidence"`
}

// SynthesisResult is the synthesis source payload.
type SynthesisResult struct {
	Persona      Persona            `json:"persona"`
	Raw          string             `json:"raw,omitempty"`
	SourceCounts map[SourceName]int `json:"source_counts,omitempty"`
}

func (s SynthesisResult) Source() SourceName { return SourceSynthesis }

func (s SynthesisResult) ItemCount() int {
	if strings.TrimSpace(s.Persona.Narrative) == "" {
		return 0
	}
	return 1
}

func (s SynthesisResult) HasData() bool {
	if len(strings.TrimSpace(s.Persona.Narrative)) <= MinNarrative {
		return false
	}
	return !ContainsFailureMarker(s.Persona.Narrative) && !ContainsFailureMarker(s.Raw)
}

// ContainsFailureMarker reports whether text embeds one of the failure markers.
func ContainsFailureMarker(text string) bool {
	for _, m := range failureMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// DecodePayload rebuilds a payload from its stored JSON by source.
func DecodePayload(source SourceName, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s ok result without payload", ErrInvariantViolation, source)
	}

	var (
		payload Payload
		err     error
	)
	switch source {
	case SourceWebsite:
		var p WebsiteExtraction
		err = json.Unmarshal(raw, &p)
		payload = p
	case SourceReviews:
		var p ReviewCollection
		err = json.Unmarshal(raw, &p)
		payload = p
	case SourceSocial:
		var p SocialCollection
		err = json.Unmarshal(raw, &p)
		payload = p
	case SourceVideo:
		var p VideoCollection
		err = json.Unmarshal(raw, &p)
		payload = p
	case SourceSynthesis:
		var p SynthesisResult
		err = json.Unmarshal(raw, &p)
		payload = p
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", source, err)
	}
	return payload, nil
}
