package storage

import (
	"sync/atomic"
	"testing"
	"time"
)

func newTestSubscription(cancels *int32) *subscription {
	return &subscription{path: "products", cancel: func() { atomic.AddInt32(cancels, 1) }}
}

func TestSubscription_UnsubscribeWaitsForDelivery(t *testing.T) {
	var cancels int32
	sub := newTestSubscription(&cancels)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	go sub.deliver(func() {
		close(entered)
		<-unblock
	})
	<-entered

	unsubscribed := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(unsubscribed)
	}()

	select {
	case <-unsubscribed:
		t.Fatal("Unsubscribe returned while a delivery was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	select {
	case <-unsubscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("Unsubscribe did not return after the delivery finished")
	}

	if got := atomic.LoadInt32(&cancels); got != 1 {
		t.Errorf("cancel called %d times, want 1", got)
	}
}

func TestSubscription_NoDeliveryAfterUnsubscribe(t *testing.T) {
	var cancels int32
	sub := newTestSubscription(&cancels)

	calls := 0
	sub.deliver(func() { calls++ })
	sub.Unsubscribe()
	sub.deliver(func() { calls++ })
	sub.deliver(func() { calls++ })

	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}

func TestSubscription_UnsubscribeTwice(t *testing.T) {
	var cancels int32
	sub := newTestSubscription(&cancels)

	var unsubscribe UnsubscribeFunc = sub.Unsubscribe
	unsubscribe()
	unsubscribe()

	if got := atomic.LoadInt32(&cancels); got != 1 {
		t.Errorf("cancel called %d times, want 1", got)
	}
	if !sub.stopped {
		t.Error("subscription should be stopped")
	}
}
