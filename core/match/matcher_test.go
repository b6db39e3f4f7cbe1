package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Midnight_City_(Explicit)_M83.mp3": "midnight city m83 mp3",
		"  Héllo   Wörld ":                 "hello world",
		"Don't Stop Me Now":                "dont stop me now",
		"L’estate [Remastered 2011]":       "lestate",
		"01 - Reunion.flac":                "01 reunion flac",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestTitlesContainment(t *testing.T) {
	assert.True(t, Titles("01 Midnight City.flac", "Midnight City"))
	assert.True(t, Titles("M83 - Midnight City (Official)", "Midnight City"))
	// reverse containment, target longer than three characters
	assert.True(t, Titles("Midnight City", "Midnight City Lights"))
	// but a two-letter candidate never matches by reverse containment
	assert.False(t, Titles("mi", "Midnight City"))
}

func TestTitlesStripsDecorations(t *testing.T) {
	// underscores and parentheticals from scenario filenames
	assert.True(t, Titles("Midnight_City_(Explicit)_M83.mp3", "Midnight City"))
	assert.True(t, Titles("midnight-city[live].ogg", "Midnight City"))
}

func TestTitlesDiacritics(t *testing.T) {
	assert.True(t, Titles("Esta Tarde Vi Llover", "Está Tarde Ví Llover"))
	assert.True(t, Titles("03 - l'estate di john wayne.mp3", "L'Estate Di John Wayne"))
}

func TestTitlesShortTargetsAreStrict(t *testing.T) {
	// two significant words, one missing: no match
	assert.False(t, Titles("02 Reunion.flac", "Midnight City"))
	assert.False(t, Titles("Some Other Song", "Midnight City"))
	// all significant words present: match
	assert.True(t, Titles("m83 midnight city radio rip", "Midnight City"))
}

func TestTitlesTolerantOnLongTargets(t *testing.T) {
	target := "Everything In Its Right Place Remastered Version"
	// four significant words, three present
	assert.True(t, Titles("everything right place.flac", target))
	// only one present
	assert.False(t, Titles("everything else.mp3", target))
}

func TestTitlesSymmetricFallback(t *testing.T) {
	// truncated candidate: most of its own words appear in the target
	assert.True(t, Titles("hurry up dreaming", "Hurry Up, We're Dreaming Deluxe Edition"))
	// single-word candidates never pass the fallback
	assert.False(t, Titles("dreaming", "Hurry Up, We're Dreaming Deluxe Edition"))
}

func TestTitlesStopWordsIgnored(t *testing.T) {
	// articles and prepositions carry no identity
	assert.True(t, Titles("fine della chimica.flac", "La Fine Della Chimica"))
	assert.True(t, Titles("sound of silence", "The Sound of Silence"))
}

func TestTitlesDeterministic(t *testing.T) {
	c, tgt := "Midnight_City_(Explicit)_M83.mp3", "Midnight City"
	first := Titles(c, tgt)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Titles(c, tgt))
	}
}

func TestTitlesEmptyInputs(t *testing.T) {
	assert.False(t, Titles("", "Midnight City"))
	assert.False(t, Titles("anything", ""))
	assert.False(t, Titles("(((", "Midnight City"))
}

func TestRank(t *testing.T) {
	ranked := Rank([]string{
		"11 Midnight City Instrumental Cover.mp3",
		"01 Midnight City.flac",
	}, "Midnight City")
	assert.Equal(t, "01 Midnight City.flac", ranked[0])
}
