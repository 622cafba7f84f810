package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Bushraturk/ragchatbot/internal/testutil"
)

const testDim = 8

// fastRetry keeps backoff out of test runtime.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T) (*Client, *testutil.MockEmbedder) {
	t.Helper()

	g := genkit.Init(context.Background())
	mock := testutil.NewMockEmbedder(testDim)

	client, err := NewClient(mock.RegisterEmbedder(g), Config{
		Dimension: testDim,
		Retry:     fastRetry(),
	}, testutil.DiscardLogger())
	require.NoError(t, err)

	return client, mock
}

func TestEmbedReturnsVectorPerText(t *testing.T) {
	client, _ := newTestClient(t)

	texts := []string{"first chapter", "second chapter", "third chapter"}
	vecs, err := client.Embed(context.Background(), texts, IntentDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, testDim)
	}

	// Same text, same vector.
	again, err := client.Embed(context.Background(), []string{"first chapter"}, IntentDocument)
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again[0])
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	client, mock := newTestClient(t)

	_, err := client.Embed(context.Background(), nil, IntentQuery)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = client.Embed(context.Background(), []string{"fine", "   \t\n"}, IntentDocument)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Validation happens before any provider call.
	assert.Equal(t, 0, mock.CallCount())
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	client, mock := newTestClient(t)

	mock.FailTimes(1, errors.New("got 429: rate limit exceeded"))

	vecs, err := client.EmbedOne(context.Background(), "a query", IntentQuery)
	require.NoError(t, err)
	assert.Len(t, vecs, testDim)
	assert.Equal(t, 2, mock.CallCount())
}

func TestEmbedFailsFastOnPermanentErrors(t *testing.T) {
	client, mock := newTestClient(t)

	mock.FailTimes(1, errors.New("400 invalid api key"))

	_, err := client.EmbedOne(context.Background(), "a query", IntentQuery)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, mock.CallCount())
}

func TestEmbedReportsUnavailableAfterExhaustedRetries(t *testing.T) {
	client, mock := newTestClient(t)

	mock.FailTimes(10, errors.New("503 service unavailable"))

	_, err := client.EmbedOne(context.Background(), "a query", IntentQuery)
	assert.ErrorIs(t, err, ErrUnavailable)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, 3, mock.CallCount())
}

func TestEmbedBatchesLargeInputs(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockEmbedder(testDim)

	client, err := NewClient(mock.RegisterEmbedder(g), Config{
		Dimension: testDim,
		BatchSize: 2,
		Retry:     fastRetry(),
	}, testutil.DiscardLogger())
	require.NoError(t, err)

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := client.Embed(context.Background(), texts, IntentDocument)
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, 3, mock.CallCount())
}

func TestEmbedSendsConfiguredDimension(t *testing.T) {
	client, mock := newTestClient(t)

	_, err := client.EmbedOne(context.Background(), "a query", IntentQuery)
	require.NoError(t, err)

	opts, ok := mock.LastOptions().(*genai.EmbedContentConfig)
	require.True(t, ok, "expected genai embed options, got %T", mock.LastOptions())
	require.NotNil(t, opts.OutputDimensionality)
	assert.Equal(t, int32(testDim), *opts.OutputDimensionality)
	assert.Equal(t, "RETRIEVAL_QUERY", opts.TaskType)
}

func TestIntentTaskType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "RETRIEVAL_DOCUMENT", IntentDocument.taskType())
	assert.Equal(t, "RETRIEVAL_QUERY", IntentQuery.taskType())
}
