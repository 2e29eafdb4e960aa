package conversation

import "strings"

// IntentRule matches when the lowercased message contains any keyword.
type IntentRule struct {
	Intent   Intent
	Keywords []string
}

// Vocabulary holds every keyword table the classifier, scorer and segmenter
// consult. Components copy it at construction, so a deployment can customize
// the tables without touching shared state.
type Vocabulary struct {
	// IntentRules are evaluated top to bottom; the first match wins.
	IntentRules []IntentRule

	PositiveWords []string
	PositiveEmoji []string
	NegativeWords []string
	NegativeEmoji []string
	UrgentWords   []string
	UrgentEmoji   []string

	HighUrgencyWords   []string
	MediumUrgencyWords []string

	ImportantIntents   []Intent
	ImportanceKeywords []string

	Colors        []string
	DateWords     []string
	Products      []string
	BusinessTypes []string

	// NamePatterns are regular expressions with exactly one capture group
	// holding the client's name.
	NamePatterns []string

	TopicChangePhrases []string
	// TopicTransitions lists, per previous intent, the intents that start a
	// new topic. Pairs are listed per source intent; a pair absent in one
	// direction is not implied by its reverse.
	TopicTransitions  map[Intent][]Intent
	TopicLabels       map[Intent]string
	DefaultTopicLabel string
}

// DefaultVocabulary returns the Brazilian Portuguese tables used in
// production, with English equivalents for dates, introductions and topic
// changes.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		IntentRules: []IntentRule{
			{Intent: IntentGreeting, Keywords: []string{"bom dia", "boa tarde", "boa noite"}},
			{Intent: IntentArtRequest, Keywords: []string{"arte", "design", "layout", "banner"}},
			{Intent: IntentPromotionRequest, Keywords: []string{"promoção", "campanha", "marketing"}},
			{Intent: IntentComplaint, Keywords: []string{"problema", "erro", "não funcionou"}},
			{Intent: IntentThankYou, Keywords: []string{"obrigado", "obrigada", "valeu", "thanks"}},
			{Intent: IntentGoodbye, Keywords: []string{"tchau", "até", "bye"}},
			{Intent: IntentQuestion, Keywords: []string{"?", "como", "quando", "onde"}},
		},

		PositiveWords: []string{"ótimo", "excelente", "maravilhoso", "perfeito", "adorei", "gostei", "show"},
		PositiveEmoji: []string{"😊", "😄", "😃", "😁", "😆", "😍", "🥰", "😘", "👍", "❤️", "💕", "💖"},
		NegativeWords: []string{"ruim", "péssimo", "horrível", "não gostei", "problema", "erro", "frustrado"},
		NegativeEmoji: []string{"😞", "😔", "😟", "😕", "😣", "😖", "😫", "😩", "😤", "😠", "😡", "💔"},
		UrgentWords:   []string{"urgente", "agora", "hoje", "preciso", "necessito", "importante"},
		UrgentEmoji:   []string{"😰", "😨", "😱", "😳", "😵", "🤯", "💥", "🚨", "⚡"},

		HighUrgencyWords:   []string{"urgente", "agora", "hoje", "asap", "today"},
		MediumUrgencyWords: []string{"amanhã", "próxima semana", "tomorrow", "next week"},

		ImportantIntents:   []Intent{IntentArtRequest, IntentPromotionRequest, IntentUrgentRequest},
		ImportanceKeywords: []string{"urgente", "hoje", "agora", "importante", "preciso", "necessito"},

		Colors:        []string{"azul", "vermelho", "verde", "amarelo", "rosa", "roxo", "laranja", "preto", "branco"},
		DateWords:     []string{"hoje", "amanhã", "próxima semana", "today", "tomorrow", "next week"},
		Products:      []string{"logo", "banner", "post", "flyer", "cartão", "site", "landing page"},
		BusinessTypes: []string{"restaurante", "loja", "consultório", "empresa", "startup", "freelancer"},

		NamePatterns: []string{
			`(?i)\bme chamo\s+(\p{L}+)`,
			`(?i)\bmeu nome (?:é|e)\s+(\p{L}+)`,
			`(?i)\bmy name is\s+(\p{L}+)`,
			`(?i)(?:^|[^\p{L}])sou\s+(?:o\s+|a\s+)?(\p{L}+)`,
			`(?i)\bi(?: am|'m)\s+(\p{L}+)`,
		},

		TopicChangePhrases: []string{
			"outra coisa", "mudando de assunto", "agora sobre", "falando nisso", "por falar nisso",
			"another thing", "changing subject", "speaking of that",
		},
		TopicTransitions: map[Intent][]Intent{
			IntentGreeting:         {IntentArtRequest, IntentPromotionRequest, IntentComplaint},
			IntentArtRequest:       {IntentGreeting, IntentPromotionRequest, IntentComplaint},
			IntentPromotionRequest: {IntentGreeting, IntentArtRequest, IntentComplaint},
			IntentComplaint:        {IntentGreeting, IntentArtRequest, IntentPromotionRequest},
		},
		TopicLabels: map[Intent]string{
			IntentGreeting:         "Greeting",
			IntentArtRequest:       "Art request",
			IntentPromotionRequest: "Promotion request",
			IntentComplaint:        "Complaint",
			IntentQuestion:         "Question",
			IntentThankYou:         "Thanks",
			IntentGoodbye:          "Goodbye",
		},
		DefaultTopicLabel: "General conversation",
	}
}

func (v Vocabulary) clone() Vocabulary {
	out := v
	out.IntentRules = make([]IntentRule, len(v.IntentRules))
	for i, r := range v.IntentRules {
		out.IntentRules[i] = IntentRule{Intent: r.Intent, Keywords: cloneStrings(r.Keywords)}
	}
	out.PositiveWords = cloneStrings(v.PositiveWords)
	out.PositiveEmoji = cloneStrings(v.PositiveEmoji)
	out.NegativeWords = cloneStrings(v.NegativeWords)
	out.NegativeEmoji = cloneStrings(v.NegativeEmoji)
	out.UrgentWords = cloneStrings(v.UrgentWords)
	out.UrgentEmoji = cloneStrings(v.UrgentEmoji)
	out.HighUrgencyWords = cloneStrings(v.HighUrgencyWords)
	out.MediumUrgencyWords = cloneStrings(v.MediumUrgencyWords)
	out.ImportantIntents = append([]Intent(nil), v.ImportantIntents...)
	out.ImportanceKeywords = cloneStrings(v.ImportanceKeywords)
	out.Colors = cloneStrings(v.Colors)
	out.DateWords = cloneStrings(v.DateWords)
	out.Products = cloneStrings(v.Products)
	out.BusinessTypes = cloneStrings(v.BusinessTypes)
	out.NamePatterns = cloneStrings(v.NamePatterns)
	out.TopicChangePhrases = cloneStrings(v.TopicChangePhrases)
	out.TopicTransitions = make(map[Intent][]Intent, len(v.TopicTransitions))
	for from, to := range v.TopicTransitions {
		out.TopicTransitions[from] = append([]Intent(nil), to...)
	}
	out.TopicLabels = make(map[Intent]string, len(v.TopicLabels))
	for k, label := range v.TopicLabels {
		out.TopicLabels[k] = label
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
