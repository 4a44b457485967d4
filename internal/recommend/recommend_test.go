package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mindbridge/intake/internal/models"
)

func TestSpecialist_EmptyTranscript(t *testing.T) {
	assert.Equal(t, models.SpecialistDepression, Specialist(nil))
	assert.Equal(t, models.SpecialistDepression, Specialist([]string{}))
	assert.Equal(t, models.SpecialistDepression, Specialist([]string{"", "  "}))
}

func TestSpecialist_ZeroScoreFallback(t *testing.T) {
	// No category term at all, but a school mention steers to career.
	assert.Equal(t, models.SpecialistCareer, Specialist([]string{"school has been a lot lately"}))
	assert.Equal(t, models.SpecialistDepression, Specialist([]string{"I don't really know why I'm here"}))
}

func TestSpecialist_FallbackMatchesSubstrings(t *testing.T) {
	// Whole-word "work" never reaches the fallback (it scores for career),
	// so the fallback must catch derived forms as substrings.
	assert.Equal(t, models.SpecialistCareer, Specialist([]string{"I keep working late every night"}))
	assert.Equal(t, models.SpecialistCareer, Specialist([]string{"the schoolwork is piling up on me"}))
}

func TestSpecialist_CareerBeatsADHD(t *testing.T) {
	// work ×1 at weight 3 plus deadlines at weight 2 outscores focus ×1 at
	// weight 2.
	key, scores := SpecialistWithScores([]string{"work is crushing me, the deadlines never stop and I can't focus"})
	assert.Equal(t, models.SpecialistCareer, key)
	assert.Equal(t, 5, scores[models.SpecialistCareer])
	assert.Equal(t, 2, scores[models.SpecialistADHD])
}

func TestSpecialist_WholeWordMatching(t *testing.T) {
	// "workout" must not count as "work".
	assert.NotEqual(t, models.SpecialistCareer, Specialist([]string{"my workout routine makes me anxious"}))
	assert.Equal(t, models.SpecialistAnxiety, Specialist([]string{"my workout routine makes me anxious"}))
}

func TestSpecialist_RepeatedWordCountsEachTime(t *testing.T) {
	_, one := SpecialistWithScores([]string{"work is hard"})
	_, three := SpecialistWithScores([]string{"work work work"})
	assert.Equal(t, one[models.SpecialistCareer]*3, three[models.SpecialistCareer])
}

func TestSpecialist_MultiWordPhraseCountsOnce(t *testing.T) {
	// "panic attack" scores once no matter how often it appears, on top of
	// the single-word "panic" occurrences.
	_, once := SpecialistWithScores([]string{"I had a panic attack"})
	_, twice := SpecialistWithScores([]string{"I had a panic attack then another panic attack"})
	// Each extra mention still adds the single word "panic", not the phrase.
	assert.Equal(t, once[models.SpecialistAnxiety]+3, twice[models.SpecialistAnxiety])
}

func TestSpecialist_CrisisShortCircuit(t *testing.T) {
	utterances := []string{
		"work deadlines boss workplace career", // would otherwise be career by a mile
		"some days I want to hurt myself",
	}
	assert.Equal(t, models.SpecialistDepression, Specialist(utterances))
}

func TestSpecialist_CrisisPhraseWithApostrophe(t *testing.T) {
	assert.Equal(t, models.SpecialistDepression, Specialist([]string{"I just can't go on like this"}))
}

func TestSpecialist_TieBreakOrder(t *testing.T) {
	// anxiety and depression both score 3; anxiety is declared first.
	got := Specialist([]string{"anxiety and feeling hopeless"})
	assert.Equal(t, models.SpecialistAnxiety, got)
}

func TestSpecialist_Deterministic(t *testing.T) {
	utterances := []string{"tired at work, anxious about deadlines, can't concentrate"}
	first := Specialist(utterances)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Specialist(utterances))
	}
}

func TestSpecialist_CaseAndPunctuationInsensitive(t *testing.T) {
	a := Specialist([]string{"ANXIETY!! Panic... worried???"})
	b := Specialist([]string{"anxiety panic worried"})
	assert.Equal(t, b, a)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "can't go on", normalize("Can't GO on!!"))
	assert.Equal(t, "work life", normalize("work:   life?"))
}
