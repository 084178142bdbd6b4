package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Event is a single server-sent event pushed to subscribers of a job.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans job events out to any number of SSE subscribers.
// Publishing is best effort: a subscriber that stops draining its
// channel misses events instead of blocking the analysis goroutine.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]chan Event)}
}

// Subscribe registers a new listener for the given job ID.
func (b *Broker) Subscribe(jobID string) chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[jobID] = append(b.subs[jobID], ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broker) Unsubscribe(jobID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chans := b.subs[jobID]
	for i, c := range chans {
		if c == ch {
			b.subs[jobID] = append(chans[:i], chans[i+1:]...)
			close(c)
			break
		}
	}
	if len(b.subs[jobID]) == 0 {
		delete(b.subs, jobID)
	}
}

// Publish delivers an event to every subscriber of the job.
func (b *Broker) Publish(jobID string, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[jobID] {
		select {
		case ch <- ev:
		default:
			// channel full, skip
		}
	}
}

// HasSubscribers reports whether anyone is listening for the job.
func (b *Broker) HasSubscribers(jobID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID]) > 0
}

// ServeSSE streams events for one job over a text/event-stream response
// until the client disconnects.
func (b *Broker) ServeSSE(w http.ResponseWriter, r *http.Request, jobID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := b.Subscribe(jobID)
	defer b.Unsubscribe(jobID, ch)

	fmt.Fprintf(w, "event: init\ndata: {\"job_id\":%q}\n\n", jobID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}
