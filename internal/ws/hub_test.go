package ws

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type captureSubscriber struct {
	payloads chan []byte
	fail     bool
	closed   bool
}

func newCaptureSubscriber() *captureSubscriber {
	return &captureSubscriber{payloads: make(chan []byte, 8)}
}

func (c *captureSubscriber) Send(payload []byte) error {
	if c.fail {
		return errors.New("send failed")
	}
	c.payloads <- payload
	return nil
}

func (c *captureSubscriber) Close() { c.closed = true }

func waitForPayload(t *testing.T, sub *captureSubscriber) []byte {
	t.Helper()
	select {
	case p := <-sub.payloads:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestPublishReachesOnlyImageSubscribers(t *testing.T) {
	hub := NewHub()
	a := newCaptureSubscriber()
	b := newCaptureSubscriber()
	hub.Register("image-a", a)
	hub.Register("image-b", b)

	hub.Publish("scaled", "image-a", map[string]int{"running": 3})

	payload := waitForPayload(t, a)
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Kind != "scaled" || event.ImageID != "image-a" {
		t.Fatalf("unexpected event %+v", event)
	}
	select {
	case <-b.payloads:
		t.Fatal("subscriber of image-b received image-a event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFailingSubscriberIsDropped(t *testing.T) {
	hub := NewHub()
	broken := newCaptureSubscriber()
	broken.fail = true
	healthy := newCaptureSubscriber()
	hub.Register("image-a", broken)
	hub.Register("image-a", healthy)

	hub.Broadcast("image-a", []byte("one"))
	waitForPayload(t, healthy)

	hub.Broadcast("image-a", []byte("two"))
	waitForPayload(t, healthy)
	if !broken.closed {
		t.Fatal("expected failing subscriber to be closed")
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	sub := newCaptureSubscriber()
	hub.Register("image-a", sub)
	hub.Unregister("image-a", sub)

	hub.Broadcast("image-a", []byte("after"))
	select {
	case <-sub.payloads:
		t.Fatal("received payload after unregister")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBufferedHubDeliversInOrder(t *testing.T) {
	hub := NewHub(WithEventBuffer(8))
	sub := newCaptureSubscriber()
	hub.Register("image-a", sub)

	for i := 0; i < 3; i++ {
		hub.Publish("traffic", "image-a", map[string]int{"batch": i})
	}

	for i := 0; i < 3; i++ {
		var event Event
		if err := json.Unmarshal(waitForPayload(t, sub), &event); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		data, ok := event.Data.(map[string]interface{})
		if !ok {
			t.Fatalf("unexpected data %+v", event.Data)
		}
		if int(data["batch"].(float64)) != i {
			t.Fatalf("expected batch %d, got %v", i, data["batch"])
		}
	}
}
