package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_UrgentBannerGreeting(t *testing.T) {
	c := NewClassifier(DefaultVocabulary())

	got := c.Classify("Bom dia! Preciso de um banner vermelho pra amanhã, é urgente!")

	assert.Equal(t, IntentGreeting, got.Intent)
	assert.Equal(t, EmotionUrgent, got.EmotionalState)
	assert.Equal(t, UrgencyHigh, got.Urgency)
	assert.Equal(t, []string{"vermelho"}, got.Entities.Colors)
	assert.Equal(t, []string{"amanhã"}, got.Entities.Dates)
	assert.Equal(t, []string{"banner"}, got.Entities.Products)
	assert.Nil(t, got.Entities.Sizes)
	assert.Empty(t, got.ClientNameHint)
	assert.Empty(t, got.BusinessTypeHint)
}

func TestClassifier_IntentPriority(t *testing.T) {
	c := NewClassifier(DefaultVocabulary())

	tests := []struct {
		name    string
		message string
		want    Intent
	}{
		{name: "greeting", message: "Boa tarde, tudo bem", want: IntentGreeting},
		{name: "art before promotion", message: "Quero um layout para a campanha", want: IntentArtRequest},
		{name: "promotion", message: "Vamos fazer uma promoção de natal", want: IntentPromotionRequest},
		{name: "complaint", message: "Deu problema no arquivo", want: IntentComplaint},
		{name: "thanks", message: "Valeu demais", want: IntentThankYou},
		{name: "goodbye", message: "Tchau, fica bem", want: IntentGoodbye},
		{name: "question mark", message: "Pode ser azul?", want: IntentQuestion},
		{name: "question word", message: "Quando fica pronto", want: IntentQuestion},
		{name: "general", message: "ok", want: IntentGeneral},
		{name: "case insensitive", message: "BOM DIA", want: IntentGreeting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.message).Intent)
		})
	}
}

func TestClassifier_EmotionalState(t *testing.T) {
	c := NewClassifier(DefaultVocabulary())

	tests := []struct {
		name    string
		message string
		want    EmotionalState
	}{
		{name: "positive word", message: "ficou ótimo", want: EmotionPositive},
		{name: "positive emoji", message: "valeu 👍", want: EmotionPositive},
		{name: "negative word", message: "ficou ruim", want: EmotionNegative},
		{name: "negative emoji", message: "ok 😞", want: EmotionNegative},
		{name: "urgent beats positive", message: "adorei, mas preciso de outro", want: EmotionUrgent},
		{name: "urgent emoji", message: "socorro 🚨", want: EmotionUrgent},
		{name: "positive beats negative", message: "o erro sumiu, perfeito", want: EmotionPositive},
		{name: "neutral", message: "recebi o arquivo", want: EmotionNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.message).EmotionalState)
		})
	}
}

func TestClassifier_Urgency(t *testing.T) {
	c := NewClassifier(DefaultVocabulary())

	assert.Equal(t, UrgencyHigh, c.Classify("preciso pra hoje").Urgency)
	assert.Equal(t, UrgencyHigh, c.Classify("need it today").Urgency)
	assert.Equal(t, UrgencyMedium, c.Classify("pode ser para a próxima semana").Urgency)
	assert.Equal(t, UrgencyMedium, c.Classify("amanhã está bom").Urgency)
	assert.Equal(t, UrgencyNormal, c.Classify("sem pressa").Urgency)
}

func TestClassifier_Entities(t *testing.T) {
	c := NewClassifier(DefaultVocabulary())

	got := c.Classify("Flyer 1080x1080 e cartão 9 cm, entrega 15/03 ou 20-03, cores azul e preto")

	assert.Equal(t, []string{"azul", "preto"}, got.Entities.Colors)
	assert.Equal(t, []string{"15/03", "20-03"}, got.Entities.Dates)
	assert.Equal(t, []string{"1080x1080", "9 cm"}, got.Entities.Sizes)
	assert.Equal(t, []string{"flyer", "cartão"}, got.Entities.Products)

	empty := c.Classify("tudo certo")
	assert.True(t, empty.Entities.Empty())
}

func TestClassifier_ClientHints(t *testing.T) {
	c := NewClassifier(DefaultVocabulary())

	tests := []struct {
		name     string
		message  string
		wantName string
		wantBiz  string
	}{
		{name: "me chamo", message: "Oi, me chamo Ana e tenho uma loja", wantName: "Ana", wantBiz: "loja"},
		{name: "meu nome é", message: "Meu nome é João", wantName: "João"},
		{name: "my name is", message: "Hello, my name is Carla", wantName: "Carla"},
		{name: "sou a", message: "Sou a Beatriz do restaurante", wantName: "Beatriz", wantBiz: "restaurante"},
		{name: "i am", message: "I am Pedro", wantName: "Pedro"},
		{name: "no hint", message: "Quero um logo para minha startup", wantBiz: "startup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.message)
			assert.Equal(t, tt.wantName, got.ClientNameHint)
			assert.Equal(t, tt.wantBiz, got.BusinessTypeHint)
		})
	}
}

func TestClassifier_CustomVocabularyIsCopied(t *testing.T) {
	vocab := DefaultVocabulary()
	vocab.Colors = []string{"magenta"}
	c := NewClassifier(vocab)

	vocab.Colors[0] = "ciano"

	assert.Equal(t, []string{"magenta"}, c.Classify("quero magenta").Entities.Colors)
	assert.Nil(t, c.Classify("quero ciano").Entities.Colors)
}
