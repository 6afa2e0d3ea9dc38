package buffer

import "sync"

// Ring is a thread-safe circular byte buffer. When full, writes drop the
// oldest data so the buffer always holds the most recent bytes.
type Ring struct {
	buf  []byte
	head int // absolute write position
	tail int // absolute read position
	size int
	mu   sync.Mutex
}

func NewRing(size int) *Ring {
	return &Ring{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write appends data. If the buffer is full the oldest bytes are dropped.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if r.size == 0 {
		return n, nil
	}
	if n > r.size {
		p = p[n-r.size:]
		n = r.size
	}

	free := r.size - (r.head - r.tail)
	if free < n {
		r.tail += n - free
	}

	for i := 0; i < n; i++ {
		r.buf[(r.head+i)%r.size] = p[i]
	}
	r.head += n
	return n, nil
}

// Read consumes up to len(p) bytes from the buffer.
func (r *Ring) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	avail := r.head - r.tail
	if avail <= 0 {
		return 0, nil
	}

	n := len(p)
	if n > avail {
		n = avail
	}

	for i := 0; i < n; i++ {
		p[i] = r.buf[(r.tail+i)%r.size]
	}
	r.tail += n
	return n, nil
}

// Snapshot returns a copy of the buffered data without consuming it.
func (r *Ring) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	avail := r.head - r.tail
	if avail <= 0 {
		return nil
	}

	out := make([]byte, avail)
	for i := 0; i < avail; i++ {
		out[i] = r.buf[(r.tail+i)%r.size]
	}
	return out
}

func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.tail = 0
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head - r.tail
}

func (r *Ring) Size() int { return r.size }
