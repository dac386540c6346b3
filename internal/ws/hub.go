package ws

import (
	"encoding/json"
	"sync"
	"time"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Event is the envelope for fleet stream payloads. Kind names the
// activity (scaled, traffic, usage) and Data carries the subsystem
// response body.
type Event struct {
	Kind    string      `json:"kind"`
	ImageID string      `json:"image_id"`
	At      time.Time   `json:"at"`
	Data    interface{} `json:"data,omitempty"`
}

// Hub manages fleet event subscriptions by image ID.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with image identifier.
type message struct {
	imageID string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	imageID string
	client  Subscriber
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithEventBuffer sets the broadcast channel depth. Non-positive values
// keep the channel unbuffered.
func WithEventBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.broadcast = make(chan message, n)
		}
	}
}

// NewHub creates an initialized Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.imageID]; !ok {
				h.clients[sub.imageID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.imageID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.imageID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.imageID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.imageID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.imageID)
				}
			}
		}
	}
}

// Register adds a client to an image stream.
func (h *Hub) Register(imageID string, client Subscriber) {
	h.register <- subscription{imageID: imageID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(imageID string, client Subscriber) {
	h.unreg <- subscription{imageID: imageID, client: client}
}

// Broadcast sends payload to all image stream clients.
func (h *Hub) Broadcast(imageID string, payload []byte) {
	h.broadcast <- message{imageID: imageID, payload: payload}
}

// Publish marshals a fleet event and broadcasts it on the image stream.
// Marshal failures are swallowed, event payloads are plain data types.
func (h *Hub) Publish(kind, imageID string, data interface{}) {
	payload, err := json.Marshal(Event{Kind: kind, ImageID: imageID, At: time.Now().UTC(), Data: data})
	if err != nil {
		return
	}
	h.Broadcast(imageID, payload)
}
