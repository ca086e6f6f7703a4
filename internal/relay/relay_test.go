package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/scene"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func setup(t *testing.T) (*Relay, *scene.Loop, *fakeClock, replica.Store) {
	t.Helper()
	store := replica.NewMemoryStore()
	loop := scene.NewLoop(time.Millisecond, nil)
	clock := &fakeClock{t: time.UnixMilli(1_000_000)}
	r := newRelay(store, loop, nil, clock.now)
	r.Start(context.Background())
	return r, loop, clock, store
}

func TestRelay_DeferredPublishAndDispatch(t *testing.T) {
	r, loop, _, _ := setup(t)

	var got []string
	r.Handle(models.MessageCreateSurvey, func(context.Context, json.RawMessage) { got = append(got, "survey") })
	r.Handle(models.MessageCurrentActivityClosed, func(context.Context, json.RawMessage) {
		got = append(got, "closed")
		r.Publish(models.MessageShowCurrentActivityResults, struct{}{})
	})
	r.Handle(models.MessageShowCurrentActivityResults, func(context.Context, json.RawMessage) { got = append(got, "results") })

	r.Publish(models.MessageCreateSurvey, struct{}{})
	r.Publish(models.MessageCurrentActivityClosed, struct{}{})
	assert.Empty(t, got, "publish waits for the next tick")

	for i := 0; i < 4; i++ {
		loop.Step(time.Millisecond)
	}
	assert.Equal(t, []string{"survey", "closed", "results"}, got)
}

func TestRelay_TimestampsStrictlyIncrease(t *testing.T) {
	r, loop, clock, store := setup(t)
	clock.t = clock.t.Add(time.Second)

	for i := 0; i < 3; i++ {
		r.Publish(models.MessageCreateQA, struct{}{})
	}
	loop.Step(time.Millisecond)

	bus, ok, err := replica.NewTable[models.MessageBus](store, replica.ChannelMessageBus).Get(context.Background(), busRecordID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, bus.Messages, 3)
	for i := 1; i < len(bus.Messages); i++ {
		assert.Greater(t, bus.Messages[i].Timestamp, bus.Messages[i-1].Timestamp)
	}
}

func TestRelay_IgnoresOldAndUnknownMessages(t *testing.T) {
	r, loop, _, store := setup(t)
	bus := replica.NewTable[models.MessageBus](store, replica.ChannelMessageBus)

	calls := 0
	r.Handle(models.MessageCreateQA, func(context.Context, json.RawMessage) { calls++ })

	start := r.Watermark()
	require.NoError(t, bus.Put(context.Background(), busRecordID, models.MessageBus{Messages: []models.RelayMessage{
		{Content: models.MessageContent{Case: models.MessageCreateQA}, Timestamp: start - 10},
		{Content: models.MessageContent{Case: "somethingNew"}, Timestamp: start + 5},
		{Content: models.MessageContent{Case: models.MessageCreateQA}, Timestamp: start + 2},
	}}))
	loop.Step(time.Millisecond)

	assert.Equal(t, 1, calls, "only the message after the watermark is handled")
	assert.Equal(t, start+5, r.Watermark(), "unknown kinds still advance the watermark")

	// the same log delivered again is not reprocessed
	require.NoError(t, bus.Put(context.Background(), busRecordID, models.MessageBus{Messages: []models.RelayMessage{
		{Content: models.MessageContent{Case: models.MessageCreateQA}, Timestamp: start + 2},
	}}))
	loop.Step(time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestRelay_ShuffledBatchDispatchesInTimestampOrder(t *testing.T) {
	r, loop, _, store := setup(t)
	bus := replica.NewTable[models.MessageBus](store, replica.ChannelMessageBus)

	var got []models.MessageKind
	for _, kind := range []models.MessageKind{models.MessageCreateQA, models.MessageCreateSurvey, models.MessageCurrentActivityClosed} {
		kind := kind
		r.Handle(kind, func(context.Context, json.RawMessage) { got = append(got, kind) })
	}

	start := r.Watermark()
	log := models.MessageBus{Messages: []models.RelayMessage{
		{Content: models.MessageContent{Case: models.MessageCurrentActivityClosed}, Timestamp: start + 3},
		{Content: models.MessageContent{Case: models.MessageCreateQA}, Timestamp: start + 1},
		{Content: models.MessageContent{Case: models.MessageCreateSurvey}, Timestamp: start + 2},
	}}
	require.NoError(t, bus.Put(context.Background(), busRecordID, log))
	loop.Step(time.Millisecond)

	assert.Equal(t, []models.MessageKind{
		models.MessageCreateQA,
		models.MessageCreateSurvey,
		models.MessageCurrentActivityClosed,
	}, got)
	assert.Equal(t, start+3, r.Watermark())

	require.NoError(t, bus.Put(context.Background(), busRecordID, log))
	loop.Step(time.Millisecond)
	assert.Len(t, got, 3)
}

func TestRelay_Compact(t *testing.T) {
	r, loop, clock, store := setup(t)
	bus := replica.NewTable[models.MessageBus](store, replica.ChannelMessageBus)

	r.Publish(models.MessageCreateQA, struct{}{})
	loop.Step(time.Millisecond)
	clock.t = clock.t.Add(10 * time.Minute)
	r.Publish(models.MessageCreateSurvey, struct{}{})
	loop.Step(time.Millisecond)

	n, err := r.Compact(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, _, _ := bus.Get(context.Background(), busRecordID)
	require.Len(t, b.Messages, 1)
	assert.Equal(t, models.MessageCreateSurvey, b.Messages[0].Content.Case)
}
