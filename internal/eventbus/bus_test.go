package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubC()

	b.Publish(Event{Type: TopicBatchFailed, Data: BatchFailed{BatchID: "x", Failures: 1}})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		assert.Equal(t, TopicBatchFailed, ev.Type)
		assert.False(t, ev.Time.IsZero())
		assert.Equal(t, "x", ev.Data.(BatchFailed).BatchID)
	}

	unsubA()
	unsubA()
	_, ok := <-a
	assert.False(t, ok)
	b.Publish(Event{Type: TopicEventDropped})
	require.Len(t, c, 1)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: TopicBatchFlushed})
	}
	assert.Equal(t, uint64(4), Dropped(b))
}
