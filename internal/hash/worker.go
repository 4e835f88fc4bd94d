// Package hash implements the hashing worker (§4.M, M38): background
// SHA-1 computation over an open file, advanced one fixed-size block per
// dispatch tick rather than blocking the cooperative loop.
package hash

import (
	"crypto/sha1"
	"fmt"
	"io"

	"reprapcore/internal/collab"
)

const blockSize = 8192

// Worker holds the in-progress digest state for one channel's M38.
type Worker struct {
	file   collab.File
	h      sha1hash
	active bool
}

// sha1hash wraps crypto/sha1 incremental hashing via io.Writer.
type sha1hash struct {
	w interface {
		io.Writer
		Sum([]byte) []byte
	}
}

func NewWorker() *Worker { return &Worker{} }

// Start opens the hashing condition on this channel; the file-system lock
// must already be held by the caller and kept across every subsequent
// Step call until Finish or Abort.
func (w *Worker) Start(f collab.File) {
	w.file = f
	w.h = sha1hash{w: sha1.New()}
	w.active = true
}

func (w *Worker) Active() bool { return w.active }

// Step consumes one block and folds it into the hash. Returns done=true
// once EOF is reached, at which point Finish should be called to obtain
// the digest and release the file-system lock.
func (w *Worker) Step() (done bool, err error) {
	if !w.active {
		return true, nil
	}
	buf := make([]byte, blockSize)
	n, rerr := w.file.Read(buf)
	if n > 0 {
		w.h.w.Write(buf[:n])
	}
	if rerr == io.EOF || (n == 0 && rerr != nil) {
		return true, nil
	}
	if rerr != nil {
		return true, rerr
	}
	return false, nil
}

// Finish finalizes the digest, closes the file, and clears the hashing
// condition, returning the hex digest for the reply.
func (w *Worker) Finish() string {
	defer func() {
		if w.file != nil {
			w.file.Close()
		}
		w.active = false
		w.file = nil
	}()
	sum := w.h.w.Sum(nil)
	return fmt.Sprintf("%x", sum)
}

func (w *Worker) Abort() {
	if w.file != nil {
		w.file.Close()
	}
	w.active = false
	w.file = nil
}
