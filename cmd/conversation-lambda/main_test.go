package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/heitor/pkg/logging"
)

type fakeProcessor struct {
	fail map[string]bool
	seen []string
}

func (f *fakeProcessor) Process(_ context.Context, body string) error {
	f.seen = append(f.seen, body)
	if f.fail[body] {
		return errors.New("store unavailable")
	}
	return nil
}

func TestHandleReportsOnlyFailedRecords(t *testing.T) {
	p := &fakeProcessor{fail: map[string]bool{"b2": true}}
	evt := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: "b1"},
		{MessageId: "m2", Body: "b2"},
		{MessageId: "m3", Body: "b3"},
	}}

	resp, err := handle(context.Background(), p, logging.NewWithWriter(io.Discard, "error"), evt)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "b3"}, p.seen)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m2", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandleEmptyEvent(t *testing.T) {
	resp, err := handle(context.Background(), &fakeProcessor{}, logging.NewWithWriter(io.Discard, "error"), events.SQSEvent{})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}
