package llm

import (
	"strings"
	"sync/atomic"
)

// KeyRing is a circular cursor over API keys shared by every request of
// one provider.
type KeyRing struct {
	keys   []string
	cursor atomic.Uint64
}

// NewKeyRing keeps the non-blank keys in order.
func NewKeyRing(keys ...string) *KeyRing {
	r := &KeyRing{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			r.keys = append(r.keys, k)
		}
	}
	return r
}

// Len returns the number of keys.
func (r *KeyRing) Len() int {
	return len(r.keys)
}

// Current returns the key under the cursor, or "" for an empty ring.
func (r *KeyRing) Current() string {
	if len(r.keys) == 0 {
		return ""
	}
	return r.keys[r.cursor.Load()%uint64(len(r.keys))]
}

// Rotate advances the cursor and returns the new current key.
func (r *KeyRing) Rotate() string {
	if len(r.keys) == 0 {
		return ""
	}
	return r.keys[r.cursor.Add(1)%uint64(len(r.keys))]
}
