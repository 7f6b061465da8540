package coordinator

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"telecare-signaling/pkg/metrics"
)

// fakeConn captures outbound envelopes in memory. Setting full simulates a
// connection whose send buffer never accepts a message.
type fakeConn struct {
	mu   sync.Mutex
	msgs [][]byte
	full bool
}

func (f *fakeConn) Send(msg []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.msgs = append(f.msgs, append([]byte(nil), msg...))
	return true
}

// envelopes decodes everything the connection received
func (f *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Envelope, 0, len(f.msgs))
	for _, msg := range f.msgs {
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("received malformed envelope: %v", err)
		}
		out = append(out, env)
	}
	return out
}

// received returns the payloads of every envelope with the given event name
func (f *fakeConn) received(t *testing.T, event string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, env := range f.envelopes(t) {
		if env.Event == event {
			out = append(out, env.Data)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

func newTestCoordinator(opts Options) *Coordinator {
	if opts.RoomCapacity == 0 {
		opts.RoomCapacity = 4
	}
	return New(opts, metrics.NewMetrics("test"), zap.NewNop())
}
