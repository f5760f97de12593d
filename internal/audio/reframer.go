package audio

// Reframer accumulates arbitrarily-sized audio byte chunks and yields
// whole frames of a fixed size. Leftover bytes smaller than one frame
// stay buffered until more audio arrives; no byte is dropped or
// duplicated and no short frame is ever emitted.
//
// A reframer belongs to a single session and is not safe for concurrent
// use.
type Reframer struct {
	frameSize int
	buf       []byte
}

// NewReframer creates a reframer producing frames of frameSizeBytes bytes
func NewReframer(frameSizeBytes int) *Reframer {
	return &Reframer{
		frameSize: frameSizeBytes,
		buf:       make([]byte, 0, frameSizeBytes*2),
	}
}

// Push appends audio bytes to the internal buffer
func (r *Reframer) Push(audio []byte) {
	r.buf = append(r.buf, audio...)
}

// Frames removes and returns every whole frame currently buffered, in
// order. The returned slices are copies and remain valid after further
// pushes.
func (r *Reframer) Frames() [][]byte {
	if len(r.buf) < r.frameSize {
		return nil
	}

	count := len(r.buf) / r.frameSize
	frames := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		frame := make([]byte, r.frameSize)
		copy(frame, r.buf[i*r.frameSize:(i+1)*r.frameSize])
		frames = append(frames, frame)
	}

	// Keep the partial remainder for the next push
	remainder := len(r.buf) % r.frameSize
	copy(r.buf, r.buf[count*r.frameSize:])
	r.buf = r.buf[:remainder]

	return frames
}

// FrameSize returns the frame size in bytes
func (r *Reframer) FrameSize() int {
	return r.frameSize
}

// Pending returns the number of buffered bytes not yet forming a whole frame
func (r *Reframer) Pending() int {
	return len(r.buf)
}

// Reset discards any buffered bytes
func (r *Reframer) Reset() {
	r.buf = r.buf[:0]
}
