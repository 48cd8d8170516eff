package video

import (
	"strings"
	"unicode"

	"PersonaCollector/internal/domain"
)

const (
	// RelevanceFloor is the minimum score a comment needs to be kept.
	RelevanceFloor   = 0.1
	minCommentLength = 20

	// EmotionNeutral is reported when no lexicon entry matches.
	EmotionNeutral = "neutral"
)

type emotion struct {
	name    string
	weight  float64
	entries []string
}

// lexicon is ordered; ties resolve to the earlier category.
var lexicon = []emotion{
	{"frustration", 1.0, []string{
		"frustrated", "annoying", "terrible", "awful", "hate", "worst", "broken", "useless",
		"disappointed", "fed up", "sick of", "can't stand", "doesn't work", "waste of time", "driving me crazy",
	}},
	{"excitement", 0.9, []string{
		"amazing", "awesome", "incredible", "fantastic", "love", "brilliant", "perfect",
		"thrilled", "excited", "game changer", "life saver", "best thing ever", "so happy",
	}},
	{"desperation", 1.1, []string{
		"desperate", "struggling", "stuck", "confused", "please help", "don't know what to do",
		"running out of options", "at my wit's end", "nothing works",
	}},
	{"relief", 0.8, []string{
		"finally", "relief", "solved", "fixed", "thankful", "grateful", "thank god", "so glad", "about time",
	}},
	{"anxiety", 0.7, []string{
		"worried", "scared", "nervous", "anxious", "concerned", "afraid", "unsure", "hesitant",
		"not sure", "what if", "hope it works", "fingers crossed",
	}},
}

var spamIndicators = []string{
	"click here", "check out my", "subscribe to my", "follow me", "make money",
	"work from home", "free gift", "special offer", "www.", "http", ".com", "bit.ly",
}

// Relevance scores a comment against one keyword phrase: 0.6 for the whole
// phrase plus 0.4 times the share of its words present, capped at 1.
func Relevance(text, keyword string) float64 {
	lower := strings.ToLower(text)
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	words := strings.Fields(keyword)
	if len(words) == 0 {
		return 0
	}

	score := 0.0
	if strings.Contains(lower, keyword) {
		score += 0.6
	}
	matched := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			matched++
		}
	}
	score += 0.4 * float64(matched) / float64(len(words))
	if score > 1 {
		return 1
	}
	return score
}

// DetectEmotion returns the strongest lexicon category and its intensity.
func DetectEmotion(text string) (string, float64) {
	lower := strings.ToLower(text)
	best, bestIntensity := EmotionNeutral, 0.0
	for _, e := range lexicon {
		matched := 0
		for _, entry := range e.entries {
			if strings.Contains(lower, entry) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		intensity := float64(matched) / 3 * e.weight
		if intensity > 1 {
			intensity = 1
		}
		if intensity > bestIntensity {
			best, bestIntensity = e.name, intensity
		}
	}
	return best, bestIntensity
}

// IsSpam flags promotional text, heavy word repetition and shouting.
func IsSpam(text string) bool {
	lower := strings.ToLower(text)
	for _, s := range spamIndicators {
		if strings.Contains(lower, s) {
			return true
		}
	}

	words := strings.Fields(lower)
	if len(words) > 5 {
		unique := map[string]struct{}{}
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique)) < float64(len(words))*0.5 {
			return true
		}
	}

	runes := []rune(text)
	if len(runes) > 10 {
		upper := 0
		for _, r := range runes {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if float64(upper)/float64(len(runes)) > 0.7 {
			return true
		}
	}
	return false
}

// score fills relevance and emotion, reporting whether the comment is worth keeping.
func score(c *domain.VideoComment, keyword string) bool {
	text := strings.TrimSpace(c.Text)
	if len([]rune(text)) < minCommentLength || IsSpam(text) {
		return false
	}
	c.Relevance = Relevance(text, keyword)
	if c.Relevance < RelevanceFloor {
		return false
	}
	c.Emotion, c.Intensity = DetectEmotion(text)
	c.Keyword = keyword
	return true
}
