package model

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	calls   int
	failN   int
	failErr error
	result  *Completion
}

func (f *fakeAdapter) Complete(ctx context.Context, modelID string, params map[string]any, messages []*schema.Message) (*Completion, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, f.failErr
	}
	return f.result, nil
}

func TestRetryingAdapter_SucceedsAfterTransientFailures(t *testing.T) {
	fake := &fakeAdapter{failN: 2, failErr: errors.New("rate limited"), result: &Completion{Content: "ok", Done: true}}
	retrying := WithRetry(fake)

	completion, err := retrying.Complete(context.Background(), "claude-3", nil, []*schema.Message{
		{Role: schema.User, Content: "hi"},
	})

	require.NoError(t, err)
	require.Equal(t, "ok", completion.Content)
	require.Equal(t, 3, fake.calls)
}

func TestRetryingAdapter_ExhaustsRetriesAndReturnsError(t *testing.T) {
	fake := &fakeAdapter{failN: 10, failErr: errors.New("persistent failure")}
	retrying := WithRetry(fake)

	_, err := retrying.Complete(context.Background(), "claude-3", nil, []*schema.Message{
		{Role: schema.User, Content: "hi"},
	})

	require.Error(t, err)
	require.LessOrEqual(t, fake.calls, RetryMaxAttempts+1)
}
