package conversation

import (
	"regexp"
	"strings"
)

var sizePattern = regexp.MustCompile(`(?i)(\d+x\d+|\d+\s*cm|\d+\s*px)`)

// Classification is everything the classifier derives from one message body.
type Classification struct {
	Intent           Intent
	EmotionalState   EmotionalState
	Urgency          Urgency
	Entities         Entities
	ClientNameHint   string
	BusinessTypeHint string
}

// Classifier maps message bodies to intent, affect, urgency, entities and
// client hints using fixed keyword tables. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	vocab        Vocabulary
	datePattern  *regexp.Regexp
	namePatterns []*regexp.Regexp
}

// NewClassifier compiles the vocabulary's patterns. It panics on an invalid
// name pattern, which is a configuration error.
func NewClassifier(vocab Vocabulary) *Classifier {
	vocab = vocab.clone()

	alternatives := []string{`\d{1,2}/\d{1,2}`, `\d{1,2}-\d{1,2}`}
	for _, w := range vocab.DateWords {
		alternatives = append(alternatives, regexp.QuoteMeta(w))
	}

	names := make([]*regexp.Regexp, 0, len(vocab.NamePatterns))
	for _, p := range vocab.NamePatterns {
		names = append(names, regexp.MustCompile(p))
	}

	return &Classifier{
		vocab:        vocab,
		datePattern:  regexp.MustCompile(`(?i)(` + strings.Join(alternatives, "|") + `)`),
		namePatterns: names,
	}
}

// Classify runs every rule set over body. It never fails.
func (c *Classifier) Classify(body string) Classification {
	lower := strings.ToLower(body)
	return Classification{
		Intent:           c.intent(lower),
		EmotionalState:   c.emotionalState(body, lower),
		Urgency:          c.urgency(lower),
		Entities:         c.entities(body, lower),
		ClientNameHint:   c.nameHint(body),
		BusinessTypeHint: c.businessType(lower),
	}
}

func (c *Classifier) intent(lower string) Intent {
	for _, rule := range c.vocab.IntentRules {
		if containsAny(lower, rule.Keywords) {
			return rule.Intent
		}
	}
	return IntentGeneral
}

func (c *Classifier) emotionalState(body, lower string) EmotionalState {
	urgent := containsAny(body, c.vocab.UrgentEmoji) || containsAny(lower, c.vocab.UrgentWords)
	positive := containsAny(body, c.vocab.PositiveEmoji) || containsAny(lower, c.vocab.PositiveWords)
	negative := containsAny(body, c.vocab.NegativeEmoji) || containsAny(lower, c.vocab.NegativeWords)

	switch {
	case urgent:
		return EmotionUrgent
	case positive:
		return EmotionPositive
	case negative:
		return EmotionNegative
	default:
		return EmotionNeutral
	}
}

func (c *Classifier) urgency(lower string) Urgency {
	if containsAny(lower, c.vocab.HighUrgencyWords) {
		return UrgencyHigh
	}
	if containsAny(lower, c.vocab.MediumUrgencyWords) {
		return UrgencyMedium
	}
	return UrgencyNormal
}

func (c *Classifier) entities(body, lower string) Entities {
	return Entities{
		Colors:   filterContained(lower, c.vocab.Colors),
		Dates:    c.datePattern.FindAllString(body, -1),
		Sizes:    sizePattern.FindAllString(body, -1),
		Products: filterContained(lower, c.vocab.Products),
	}
}

func (c *Classifier) nameHint(body string) string {
	for _, p := range c.namePatterns {
		if m := p.FindStringSubmatch(body); len(m) > 1 {
			if name := strings.TrimSpace(m[len(m)-1]); name != "" {
				return name
			}
		}
	}
	return ""
}

func (c *Classifier) businessType(lower string) string {
	for _, t := range c.vocab.BusinessTypes {
		if t != "" && strings.Contains(lower, t) {
			return t
		}
	}
	return ""
}

// filterContained returns the vocabulary entries present in lower, in
// vocabulary order, or nil when none are.
func filterContained(lower string, vocab []string) []string {
	var out []string
	for _, v := range vocab {
		if v != "" && strings.Contains(lower, v) {
			out = append(out, v)
		}
	}
	return out
}
