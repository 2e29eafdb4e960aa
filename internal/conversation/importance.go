package conversation

import (
	"strings"
	"unicode/utf8"
)

const (
	baseImportance     = 5
	minImportance      = 1
	maxImportance      = 10
	longMessageRunes   = 100
	maxEmojiImportance = 2
	intentImportance   = 3
	keywordImportance  = 2
	questionImportance = 1
	lengthImportance   = 1
)

// emojiRanges are the code point blocks counted as expressive emoji.
var emojiRanges = [][2]rune{
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F300, 0x1F5FF}, // symbols & pictographs
	{0x1F680, 0x1F6FF}, // transport & map
	{0x1F1E0, 0x1F1FF}, // flags
	{0x2600, 0x26FF},   // misc symbols
	{0x2700, 0x27BF},   // dingbats
}

// ImportanceScorer rates how much a message should survive in the context window.
type ImportanceScorer struct {
	intents  map[Intent]struct{}
	keywords []string
}

// NewImportanceScorer builds a scorer from the vocabulary's importance tables.
func NewImportanceScorer(vocab Vocabulary) *ImportanceScorer {
	intents := make(map[Intent]struct{}, len(vocab.ImportantIntents))
	for _, i := range vocab.ImportantIntents {
		intents[i] = struct{}{}
	}
	return &ImportanceScorer{intents: intents, keywords: cloneStrings(vocab.ImportanceKeywords)}
}

// Score returns an integer in [1,10].
func (s *ImportanceScorer) Score(message string, intent Intent) int {
	score := baseImportance
	if _, ok := s.intents[intent]; ok {
		score += intentImportance
	}
	if containsAny(strings.ToLower(message), s.keywords) {
		score += keywordImportance
	}
	if strings.Contains(message, "?") {
		score += questionImportance
	}
	if utf8.RuneCountInString(message) > longMessageRunes {
		score += lengthImportance
	}
	score += min(countEmoji(message), maxEmojiImportance)

	return max(minImportance, min(score, maxImportance))
}

func countEmoji(s string) int {
	n := 0
	for _, r := range s {
		for _, rng := range emojiRanges {
			if r >= rng[0] && r <= rng[1] {
				n++
				break
			}
		}
	}
	return n
}
