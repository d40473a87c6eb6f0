package relay

import (
	"encoding/json"
	"sync"
)

// fakeSender records every outbound message for assertions, instead of
// delivering it anywhere.
type fakeSender struct {
	mu  sync.Mutex
	out map[string][]map[string]interface{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{out: make(map[string][]map[string]interface{})}
}

func (f *fakeSender) Send(userID string, data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out[userID] = append(f.out[userID], m)
	return nil
}

func (f *fakeSender) last(userID string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.out[userID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (f *fakeSender) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out[userID])
}

// alwaysAllow is a RateLimiter that never blocks.
type alwaysAllow struct{}

func (alwaysAllow) Allow(string) bool { return true }

// denyAll is a RateLimiter that always blocks.
type denyAll struct{}

func (denyAll) Allow(string) bool { return false }
