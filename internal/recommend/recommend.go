package recommend

import (
	"regexp"
	"strings"

	"github.com/mindbridge/intake/internal/models"
)

// termGroup is a list of terms sharing one weight. Single-word terms match as
// whole words and score weight * occurrences; multi-word terms match as plain
// substrings and score their weight once.
type termGroup struct {
	terms  []string
	weight int
}

// category pairs a specialist key with its weighted term groups.
type category struct {
	key    models.SpecialistKey
	groups []termGroup
}

// categories is evaluated in declared order; ties keep the earliest leader.
var categories = []category{
	{
		key: models.SpecialistAnxiety,
		groups: []termGroup{
			{terms: []string{"anxiety", "anxious", "panic", "panic attack"}, weight: 3},
			{terms: []string{"worried", "worry", "nervous", "overwhelmed"}, weight: 2},
			{terms: []string{"sleepless", "restless", "racing thoughts"}, weight: 1},
		},
	},
	{
		key: models.SpecialistDepression,
		groups: []termGroup{
			{terms: []string{"depressed", "depression", "hopeless", "worthless"}, weight: 3},
			{terms: []string{"sad", "down", "empty", "numb", "crying", "lonely"}, weight: 2},
			{terms: []string{"tired", "exhausted", "unmotivated"}, weight: 1},
		},
	},
	{
		key: models.SpecialistADHD,
		groups: []termGroup{
			{terms: []string{"adhd", "attention deficit"}, weight: 3},
			{terms: []string{"focus", "concentrate", "distracted", "forgetful"}, weight: 2},
			{terms: []string{"restless", "disorganized", "procrastinate"}, weight: 1},
		},
	},
	{
		key: models.SpecialistCareer,
		groups: []termGroup{
			{terms: []string{"job", "work", "career", "boss", "workplace"}, weight: 3},
			{terms: []string{"deadline", "deadlines", "fired", "unemployed", "burnout", "burned out"}, weight: 2},
			{terms: []string{"interview", "promotion", "coworker"}, weight: 1},
		},
	},
}

// crisisPhrases short-circuit scoring toward the most support-heavy path.
var crisisPhrases = []string{
	"kill myself",
	"end it all",
	"suicide",
	"suicidal",
	"hurt myself",
	"take my life",
	"no reason to live",
	"want to end everything",
	"can't go on",
	"self harm",
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s']+`)

// normalize lower-cases the text and strips punctuation, keeping apostrophes
// so contractions like "can't" survive for crisis phrase matching.
func normalize(text string) string {
	s := strings.ToLower(text)
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Scores holds the per-category totals from one evaluation. Exposed for
// display in the activity timeline and for tests.
type Scores map[models.SpecialistKey]int

// Specialist maps the user's accumulated utterances to the best-fit specialist
// category. It is deterministic and side-effect-free; an empty transcript
// returns the fallback category.
func Specialist(userUtterances []string) models.SpecialistKey {
	key, _ := SpecialistWithScores(userUtterances)
	return key
}

// SpecialistWithScores is Specialist plus the raw per-category totals.
func SpecialistWithScores(userUtterances []string) (models.SpecialistKey, Scores) {
	text := normalize(strings.Join(userUtterances, " "))

	scores := make(Scores, len(categories))
	for _, c := range categories {
		scores[c.key] = 0
	}

	for _, phrase := range crisisPhrases {
		if strings.Contains(text, phrase) {
			return models.SpecialistDepression, scores
		}
	}

	best := models.SpecialistKey("")
	bestScore := -1
	for _, c := range categories {
		total := 0
		for _, g := range c.groups {
			for _, term := range g.terms {
				if strings.ContainsRune(term, ' ') {
					if strings.Contains(text, term) {
						total += g.weight
					}
					continue
				}
				total += g.weight * countWord(text, term)
			}
		}
		scores[c.key] = total
		// Strictly greater keeps the earliest leader on ties.
		if total > bestScore {
			best = c.key
			bestScore = total
		}
	}

	if bestScore <= 0 {
		return fallback(text), scores
	}
	return best, scores
}

// fallback picks a category when no keyword scored. Substring matching is
// deliberate: a whole-word "work" would already have scored for career, so
// this branch only ever sees derived forms like "working" or "schoolwork".
func fallback(text string) models.SpecialistKey {
	if strings.Contains(text, "school") || strings.Contains(text, "work") {
		return models.SpecialistCareer
	}
	return models.SpecialistDepression
}

// countWord counts whole-word occurrences of word in normalized text.
func countWord(text, word string) int {
	n := 0
	for _, field := range strings.Fields(text) {
		if strings.Trim(field, "'") == word {
			n++
		}
	}
	return n
}
