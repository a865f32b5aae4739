package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pglisten/internal/adapters/logger"
)

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(m Message, _ []Attachment) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeMarker struct {
	marked []string
	err    error
}

func (f *fakeMarker) MarkSent(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.marked = append(f.marked, id)
	return nil
}

func testConsumer(mailer *fakeSender, repo *fakeMarker) *Consumer {
	return NewConsumer(nil, "", "", 1, mailer, repo, logger.Nop())
}

func TestHandleSendsAndMarks(t *testing.T) {
	mailer := &fakeSender{}
	repo := &fakeMarker{}
	c := testConsumer(mailer, repo)

	raw, err := json.Marshal(Message{ID: "42", ToAddress: "user@example.com", Subject: "hi"})
	require.NoError(t, err)

	require.NoError(t, c.handle(context.Background(), raw))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "user@example.com", mailer.sent[0].ToAddress)
	assert.Equal(t, []string{"42"}, repo.marked)
}

func TestHandleRejectsMalformedDocument(t *testing.T) {
	mailer := &fakeSender{}
	c := testConsumer(mailer, &fakeMarker{})

	err := c.handle(context.Background(), []byte("not json"))
	require.Error(t, err)
	assert.Empty(t, mailer.sent)
}

func TestHandleRejectsCorruptAttachment(t *testing.T) {
	mailer := &fakeSender{}
	c := testConsumer(mailer, &fakeMarker{})

	raw, err := json.Marshal(Message{
		ID:        "42",
		ToAddress: "user@example.com",
		ZipBytes:  "AAAA",
		ZipSHA256: "deadbeef",
	})
	require.NoError(t, err)

	require.Error(t, c.handle(context.Background(), raw))
	assert.Empty(t, mailer.sent)
}

func TestHandleDoesNotMarkOnSendFailure(t *testing.T) {
	mailer := &fakeSender{err: errors.New("smtp down")}
	repo := &fakeMarker{}
	c := testConsumer(mailer, repo)

	raw, err := json.Marshal(Message{ID: "42", ToAddress: "user@example.com"})
	require.NoError(t, err)

	require.Error(t, c.handle(context.Background(), raw))
	assert.Empty(t, repo.marked)
}
