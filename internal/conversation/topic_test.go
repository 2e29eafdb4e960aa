package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var topicEpoch = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func TestTopicSegmenter_Timeout(t *testing.T) {
	s := NewTopicSegmenter(DefaultVocabulary(), 30*time.Minute, nil)

	cc := &ConversationContext{
		CurrentTopic:   "Question",
		TopicStartTime: topicEpoch.Add(-31 * time.Minute),
		LastIntent:     IntentQuestion,
	}
	assert.True(t, s.IsNewTopic(cc, "e o prazo", IntentQuestion, topicEpoch))

	cc.TopicStartTime = topicEpoch.Add(-29 * time.Minute)
	assert.False(t, s.IsNewTopic(cc, "e o prazo", IntentQuestion, topicEpoch))
}

func TestTopicSegmenter_IncompatibleTransition(t *testing.T) {
	s := NewTopicSegmenter(DefaultVocabulary(), 30*time.Minute, nil)
	cc := &ConversationContext{TopicStartTime: topicEpoch, LastIntent: IntentGreeting}

	assert.True(t, s.IsNewTopic(cc, "quero um banner", IntentArtRequest, topicEpoch.Add(5*time.Minute)))
	assert.True(t, s.IsNewTopic(cc, "deu erro", IntentComplaint, topicEpoch.Add(5*time.Minute)))
	assert.False(t, s.IsNewTopic(cc, "como funciona", IntentQuestion, topicEpoch.Add(5*time.Minute)))

	cc.LastIntent = IntentQuestion
	assert.False(t, s.IsNewTopic(cc, "quero um banner", IntentArtRequest, topicEpoch.Add(5*time.Minute)),
		"question has no entry in the transition table")
}

func TestTopicSegmenter_ChangePhrase(t *testing.T) {
	s := NewTopicSegmenter(DefaultVocabulary(), 30*time.Minute, nil)
	cc := &ConversationContext{TopicStartTime: topicEpoch, LastIntent: IntentGeneral}

	assert.True(t, s.IsNewTopic(cc, "Mudando de assunto, e o logo", IntentGeneral, topicEpoch))
	assert.True(t, s.IsNewTopic(cc, "Another thing: the flyer", IntentGeneral, topicEpoch))
	assert.False(t, s.IsNewTopic(cc, "e o logo", IntentGeneral, topicEpoch))
}

func TestTopicSegmenter_ExtractTopicLabel(t *testing.T) {
	s := NewTopicSegmenter(DefaultVocabulary(), 0, nil)

	assert.Equal(t, "Art request", s.ExtractTopicLabel("quero arte", IntentArtRequest))
	assert.Equal(t, "Greeting", s.ExtractTopicLabel("bom dia", IntentGreeting))
	assert.Equal(t, "General conversation", s.ExtractTopicLabel("ok", IntentGeneral))
	assert.Equal(t, "General conversation", s.ExtractTopicLabel("socorro", IntentUrgentRequest))
}

func TestTopicSegmenter_AdvanceResetsOnNewTopic(t *testing.T) {
	var finalized []string
	s := NewTopicSegmenter(DefaultVocabulary(), 30*time.Minute, func(cc *ConversationContext) {
		finalized = append(finalized, cc.CurrentTopic)
	})

	cc := &ConversationContext{TopicStartTime: topicEpoch, TopicMessages: []string{}}

	require.False(t, s.Advance(cc, "Bom dia!", IntentGreeting, topicEpoch))
	assert.Equal(t, "Greeting", cc.CurrentTopic)
	assert.Equal(t, []string{"Bom dia!"}, cc.TopicMessages)
	assert.Empty(t, finalized, "labelling the first topic does not finalize anything")
	cc.LastIntent = IntentGreeting

	later := topicEpoch.Add(5 * time.Minute)
	require.True(t, s.Advance(cc, "Quero um banner", IntentArtRequest, later))
	assert.Equal(t, "Art request", cc.CurrentTopic)
	assert.Equal(t, later, cc.TopicStartTime)
	assert.Equal(t, []string{"Quero um banner"}, cc.TopicMessages)
	assert.Equal(t, []string{"Greeting"}, finalized)
	cc.LastIntent = IntentArtRequest

	require.False(t, s.Advance(cc, "vermelho e preto", IntentGeneral, later.Add(time.Minute)))
	assert.Equal(t, []string{"Quero um banner", "vermelho e preto"}, cc.TopicMessages)
}

func TestTopicSegmenter_TimeoutWithoutTopicSkipsFinalize(t *testing.T) {
	calls := 0
	s := NewTopicSegmenter(DefaultVocabulary(), 30*time.Minute, func(*ConversationContext) { calls++ })

	cc := &ConversationContext{TopicStartTime: topicEpoch.Add(-2 * time.Hour)}
	require.True(t, s.Advance(cc, "oi", IntentGeneral, topicEpoch))
	assert.Equal(t, 0, calls)
	assert.Equal(t, "General conversation", cc.CurrentTopic)
}
