package mail

import (
	"context"
	"sync"

	goGate "github.com/MrEthical07/goGate"
)

// Recorder keeps every sent message in memory. Err, when set, is returned from Send
// after recording.
type Recorder struct {
	mu   sync.Mutex
	msgs []goGate.EmailMessage
	Err  error
}

var _ goGate.EmailSender = (*Recorder)(nil)

func (r *Recorder) Send(_ context.Context, msg goGate.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload := make(map[string]string, len(msg.Payload))
	for k, v := range msg.Payload {
		payload[k] = v
	}
	msg.Payload = payload
	r.msgs = append(r.msgs, msg)
	return r.Err
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []goGate.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]goGate.EmailMessage(nil), r.msgs...)
}

// Last returns the most recent message of kind addressed to to.
func (r *Recorder) Last(kind goGate.EmailKind, to string) (goGate.EmailMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Kind == kind && r.msgs[i].To == to {
			return r.msgs[i], true
		}
	}
	return goGate.EmailMessage{}, false
}

// Count returns how many messages of kind were recorded.
func (r *Recorder) Count(kind goGate.EmailKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops all recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
