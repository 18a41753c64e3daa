package control

import "testing"

func TestBroadcaster_PublishFansOutToEverySubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.subscribe()
	ch2 := b.subscribe()
	defer b.unsubscribe(ch1)
	defer b.unsubscribe(ch2)

	b.Publish(RuntimeEvent{Kind: "tool.call.started", SessionID: "sess_1"})

	e1 := <-ch1
	e2 := <-ch2
	if e1.Kind != "tool.call.started" || e2.Kind != "tool.call.started" {
		t.Fatalf("expected both subscribers to receive the event, got %+v %+v", e1, e2)
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster()
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	// Fill the subscriber's buffer (capacity 64) without ever draining it.
	for i := 0; i < 100; i++ {
		b.Publish(RuntimeEvent{Kind: "x"})
	}
	// Reaching here without deadlocking demonstrates Publish drops rather
	// than blocks on a full subscriber channel.
}

func TestBroadcaster_UnsubscribeStopsFutureDelivery(t *testing.T) {
	b := NewBroadcaster()
	ch := b.subscribe()
	b.unsubscribe(ch)

	b.Publish(RuntimeEvent{Kind: "after-unsubscribe"})

	if _, ok := <-ch; ok {
		t.Fatal("expected the channel to be closed after unsubscribe")
	}
}
