package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigpay/treasuryops/internal/entity"
)

func TestBroadcaster_DeliversToSubscribers(t *testing.T) {
	b := NewViewBroadcaster(4)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(entity.View{Mode: entity.ModeFallback})

	select {
	case v := <-ch:
		assert.Equal(t, entity.ModeFallback, v.Mode)
	default:
		t.Fatal("expected a buffered view")
	}
}

func TestBroadcaster_DropsSlowConsumer(t *testing.T) {
	b := NewViewBroadcaster(1)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// second publish must not block even though the buffer is full
	b.Publish(entity.View{Error: "first"})
	b.Publish(entity.View{Error: "second"})

	v := <-ch
	require.Equal(t, "first", v.Error)
	select {
	case <-ch:
		t.Fatal("second view should have been dropped")
	default:
	}
}

func TestBroadcaster_UnsubscribeCloses(t *testing.T) {
	b := NewViewBroadcaster(1)
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)
}
