package ingest

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/issuesim/engine/tracker"
)

type captureSubscriber struct {
	subject string
	cb      nats.MsgHandler
}

func (c *captureSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.subject, c.cb = subject, cb
	return &nats.Subscription{}, nil
}

type blockingFetcher struct {
	fakeFetcher
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) FetchIssues(ctx context.Context) ([]tracker.Issue, error) {
	b.calls.Add(1)
	close(b.started)
	<-b.release
	return b.fakeFetcher.FetchIssues(ctx)
}

func TestStartConsumer_RunsRequestedRebuild(t *testing.T) {
	deps, s := testDeps(t)
	pub := &capturePublisher{}
	deps.Events = pub
	sub := &captureSubscriber{}

	_, err := StartConsumer(context.Background(), sub, deps)
	require.NoError(t, err)
	assert.Equal(t, RequestSubject, sub.subject)

	sub.cb(&nats.Msg{Subject: RequestSubject, Data: []byte(`{"id":"from-nats"}`)})

	m, err := s.Meta()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rows)
	require.Len(t, pub.msgs, 1)
	assert.Contains(t, string(pub.msgs[0].Data), `"job_id":"from-nats"`)
}

func TestStartConsumer_AssignsMissingJobID(t *testing.T) {
	deps, _ := testDeps(t)
	pub := &capturePublisher{}
	deps.Events = pub
	sub := &captureSubscriber{}

	_, err := StartConsumer(context.Background(), sub, deps)
	require.NoError(t, err)
	sub.cb(&nats.Msg{Data: []byte(`{}`)})

	require.Len(t, pub.msgs, 1)
	assert.NotContains(t, string(pub.msgs[0].Data), `"job_id":""`)
}

func TestStartConsumer_FailureIsLogged(t *testing.T) {
	deps, s := testDeps(t)
	deps.Fetcher = &fakeFetcher{err: assert.AnError}
	sub := &captureSubscriber{}

	_, err := StartConsumer(context.Background(), sub, deps)
	require.NoError(t, err)
	sub.cb(&nats.Msg{Data: []byte(`{"id":"x"}`)})

	_, err = s.Meta()
	assert.Error(t, err)
}

func TestStartConsumer_SkipsWhileRunning(t *testing.T) {
	deps, _ := testDeps(t)
	fetcher := &blockingFetcher{
		fakeFetcher: fakeFetcher{issues: sampleIssues()},
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	deps.Fetcher = fetcher
	pub := &capturePublisher{}
	deps.Events = pub
	sub := &captureSubscriber{}

	_, err := StartConsumer(context.Background(), sub, deps)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.cb(&nats.Msg{Data: []byte(`{"id":"first"}`)})
	}()
	<-fetcher.started

	sub.cb(&nats.Msg{Data: []byte(`{"id":"second"}`)})
	close(fetcher.release)
	<-done

	assert.Equal(t, int32(1), fetcher.calls.Load())
	require.Len(t, pub.msgs, 1)
	assert.Contains(t, string(pub.msgs[0].Data), `"job_id":"first"`)
}
