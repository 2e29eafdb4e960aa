package conversation

import (
	"strings"
	"time"
)

// FinalizeFunc observes a topic as it closes. It must not mutate cc.
type FinalizeFunc func(cc *ConversationContext)

// TopicSegmenter decides when a conversation moves to a new topic.
type TopicSegmenter struct {
	timeout      time.Duration
	transitions  map[Intent]map[Intent]struct{}
	phrases      []string
	labels       map[Intent]string
	defaultLabel string
	onFinalize   FinalizeFunc
}

// NewTopicSegmenter builds a segmenter; onFinalize may be nil.
func NewTopicSegmenter(vocab Vocabulary, timeout time.Duration, onFinalize FinalizeFunc) *TopicSegmenter {
	vocab = vocab.clone()
	if timeout <= 0 {
		timeout = DefaultLimits().TopicTimeout
	}
	transitions := make(map[Intent]map[Intent]struct{}, len(vocab.TopicTransitions))
	for from, targets := range vocab.TopicTransitions {
		set := make(map[Intent]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		transitions[from] = set
	}
	phrases := make([]string, 0, len(vocab.TopicChangePhrases))
	for _, p := range vocab.TopicChangePhrases {
		phrases = append(phrases, strings.ToLower(p))
	}
	defaultLabel := vocab.DefaultTopicLabel
	if defaultLabel == "" {
		defaultLabel = "General conversation"
	}
	return &TopicSegmenter{
		timeout:      timeout,
		transitions:  transitions,
		phrases:      phrases,
		labels:       vocab.TopicLabels,
		defaultLabel: defaultLabel,
		onFinalize:   onFinalize,
	}
}

// IsNewTopic evaluates timeout, then intent transition, then explicit
// topic-change phrases; the first that holds wins.
func (s *TopicSegmenter) IsNewTopic(cc *ConversationContext, message string, intent Intent, now time.Time) bool {
	if cc == nil {
		return true
	}
	if now.Sub(cc.TopicStartTime) > s.timeout {
		return true
	}
	if cc.LastIntent != "" {
		if _, ok := s.transitions[cc.LastIntent][intent]; ok {
			return true
		}
	}
	return containsAny(strings.ToLower(message), s.phrases)
}

// ExtractTopicLabel maps an intent to a human-readable topic label.
func (s *TopicSegmenter) ExtractTopicLabel(_ string, intent Intent) string {
	if label, ok := s.labels[intent]; ok && label != "" {
		return label
	}
	return s.defaultLabel
}

// FinalizeTopic hands the closing topic to the observer hook.
func (s *TopicSegmenter) FinalizeTopic(cc *ConversationContext) {
	if s.onFinalize != nil && cc != nil {
		s.onFinalize(cc)
	}
}

// Advance folds message into cc's topic state and reports whether a new
// topic began.
func (s *TopicSegmenter) Advance(cc *ConversationContext, message string, intent Intent, now time.Time) bool {
	if s.IsNewTopic(cc, message, intent, now) {
		if cc.CurrentTopic != "" {
			s.FinalizeTopic(cc)
		}
		cc.CurrentTopic = s.ExtractTopicLabel(message, intent)
		cc.TopicStartTime = now
		cc.TopicMessages = []string{message}
		return true
	}
	// A fresh conversation has an open topic with no label yet.
	if cc.CurrentTopic == "" {
		cc.CurrentTopic = s.ExtractTopicLabel(message, intent)
	}
	cc.TopicMessages = append(cc.TopicMessages, message)
	return false
}
