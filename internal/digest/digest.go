// Package digest computes BLAKE3 digests of file regions and of byte streams
// so sent and received content can be compared.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashFile computes the BLAKE3 hash of the file at path, returning the hex-encoded digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return HashRange(f, 0, fi.Size())
}

// HashRange hashes n bytes of r starting at off. A region that runs past the
// end of the file is hashed up to EOF.
func HashRange(r io.ReaderAt, off, n int64) (string, error) {
	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, io.NewSectionReader(r, off, n), buf); err != nil {
		return "", fmt.Errorf("hash range %d+%d: %w", off, n, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sink is an io.Writer that hashes and counts everything written to it.
type Sink struct {
	h *blake3.Hasher
	n int64
}

// NewSink returns an empty Sink.
func NewSink() *Sink {
	return &Sink{h: blake3.New()}
}

func (s *Sink) Write(p []byte) (int, error) {
	n, err := s.h.Write(p)
	s.n += int64(n)
	return n, err
}

// Len returns the number of bytes written so far.
func (s *Sink) Len() int64 { return s.n }

// Sum returns the hex-encoded digest of everything written so far.
func (s *Sink) Sum() string {
	return hex.EncodeToString(s.h.Sum(nil))
}

// Bytes returns the hex-encoded digest of b.
func Bytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
