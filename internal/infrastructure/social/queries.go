package social

import "strings"

const maxForums = 5

// baselineForums are always searched, whatever the keywords.
var baselineForums = []string{"reviews", "BuyItForLife"}

var forumTable = map[string][]string{
	"sleep":        {"sleep", "insomnia"},
	"insomnia":     {"insomnia", "sleep"},
	"grounding":    {"Earthing", "grounding"},
	"earthing":     {"Earthing", "grounding"},
	"health":       {"health", "naturalhealth"},
	"wellness":     {"wellness", "biohacking"},
	"biohacking":   {"biohacking"},
	"pain":         {"ChronicPain", "Fibromyalgia"},
	"inflammation": {"inflammation", "ChronicPain"},
	"supplement":   {"Supplements"},
	"supplements":  {"Supplements"},
	"skin":         {"SkincareAddiction"},
	"skincare":     {"SkincareAddiction"},
	"fitness":      {"Fitness"},
	"running":      {"running"},
	"coffee":       {"Coffee"},
	"mattress":     {"Mattress", "sleep"},
	"pet":          {"pets", "dogs"},
	"dog":          {"dogs"},
	"baby":         {"beyondthebump", "Parenting"},
	"product":      {"ProductPorn"},
	"service":      {"Scams", "YouShouldKnow"},
}

var querySuffixes = []string{"review", "experience", "worth it", "quality"}

// Queries expands each keyword phrase into the search set: the phrase, its terms
// of three or more characters, the quoted phrase, and the phrase with review suffixes.
func Queries(keywords []string) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}

	for _, phrase := range keywords {
		phrase = strings.Join(strings.Fields(phrase), " ")
		if phrase == "" {
			continue
		}
		add(phrase)
		for _, term := range strings.Fields(phrase) {
			if len([]rune(term)) >= 3 {
				add(term)
			}
		}
		add(`"` + phrase + `"`)
		for _, suffix := range querySuffixes {
			add(phrase + " " + suffix)
		}
	}
	return out
}

// Forums maps keywords to topic forums and appends the baseline, capped at five.
func Forums(keywords []string) []string {
	seen := map[string]struct{}{}
	for _, f := range baselineForums {
		seen[strings.ToLower(f)] = struct{}{}
	}

	room := maxForums - len(baselineForums)
	var mapped []string
	for _, phrase := range keywords {
		for _, word := range strings.Fields(strings.ToLower(phrase)) {
			for _, forum := range forumTable[strings.Trim(word, `"'.,!?`)] {
				key := strings.ToLower(forum)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				mapped = append(mapped, forum)
			}
		}
	}
	if len(mapped) > room {
		mapped = mapped[:room]
	}

	return append(mapped, baselineForums...)
}

// Relevance scores text against the keywords: 0.3 per phrase hit, 0.1 per term hit.
func Relevance(text string, keywords []string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			score += 0.3
		}
		for _, word := range strings.Fields(kw) {
			if strings.Contains(lower, word) {
				score += 0.1
			}
		}
	}
	if score > 1 {
		return 1
	}
	return score
}
