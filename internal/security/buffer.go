package security

import "sync"

// SecureBuffer owns decrypted plaintext until Wipe is called.
//
// Wipe overwrites the backing array with zeros in place and drops the reference.
// This is a best-effort measure: the Go runtime may already have copied bytes
// (stack growth, string conversions in decoders, GC moves), and those copies
// are not reachable from here. Callers should keep the plaintext as []byte and
// avoid converting it to string.
type SecureBuffer struct {
	mu    sync.Mutex
	data  []byte
	wiped bool
}

// NewSecureBuffer takes ownership of data. The caller must not retain other references to it.
func NewSecureBuffer(data []byte) *SecureBuffer {
	return &SecureBuffer{data: data}
}

// Bytes returns the plaintext, or nil once wiped. The slice aliases the buffer.
func (b *SecureBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wiped {
		return nil
	}
	return b.data
}

// Len returns the plaintext length
func (b *SecureBuffer) Len() int {
	return len(b.Bytes())
}

// Wiped reports whether Wipe has run
func (b *SecureBuffer) Wiped() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wiped
}

// Wipe zeroes the plaintext and releases it. Safe to call more than once and on nil.
func (b *SecureBuffer) Wipe() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wiped {
		return
	}
	zero(b.data)
	b.data = nil
	b.wiped = true
}

func zero(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
