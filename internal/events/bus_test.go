package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFiltersByType(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	all := bus.Subscribe()
	onlyFailed := bus.Subscribe(TypeWorkflowFailed)

	bus.Publish(NewWorkflowTransitionEvent("wf-1", "created", "analyzing"))
	bus.Publish(NewWorkflowFailedEvent("wf-1", "analyzing", assert.AnError))

	require.Len(t, drain(all), 2)

	failed := drain(onlyFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, TypeWorkflowFailed, failed[0].EventType())
	assert.Equal(t, "wf-1", failed[0].WorkflowID())
}

func TestFullBufferDropsOldest(t *testing.T) {
	bus := New(1)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Publish(NewWorkflowTransitionEvent("wf-1", "created", "analyzing"))
	bus.Publish(NewWorkflowTransitionEvent("wf-2", "created", "analyzing"))

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, "wf-2", got[0].WorkflowID(), "oldest event is dropped first")
	assert.Equal(t, int64(1), bus.DroppedCount())
}

func TestPriorityDelivery(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	priority := bus.SubscribePriority()
	bus.PublishPriority(NewWorkflowFailedEvent("wf-1", "executing", assert.AnError))

	select {
	case ev := <-priority:
		assert.Equal(t, TypeWorkflowFailed, ev.EventType())
	case <-time.After(time.Second):
		t.Fatal("priority event not delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe reaches nobody and does not panic.
	bus.Publish(NewWorkflowTransitionEvent("wf-1", "created", "analyzing"))
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := New(10)
	ch := bus.Subscribe()

	bus.Close()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publishing on a closed bus is a no-op.
	bus.Publish(NewWorkflowTransitionEvent("wf-1", "created", "analyzing"))
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
