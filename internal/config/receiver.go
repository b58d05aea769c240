package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// receiverPathOverride allows tests to redirect the receiver file path.
var receiverPathOverride string //nolint:gochecknoglobals // test hook

// SetReceiverPathOverride sets a test override for the receiver path.
// Pass "" to restore the default.
func SetReceiverPathOverride(path string) {
	receiverPathOverride = path
}

// Receiver describes a running `zerocopy serve` so that `zerocopy send`
// can find it without an explicit --addr.
type Receiver struct {
	ID     string `toml:"id"`
	Addr   string `toml:"addr"`
	PID    int    `toml:"pid"`
	Verify bool   `toml:"verify"`
}

// ReceiverPath returns the path of the receiver file. It lives under
// $XDG_RUNTIME_DIR when set and a per-user temp directory otherwise.
func ReceiverPath() string {
	if receiverPathOverride != "" {
		return receiverPathOverride
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "zerocopy-"+strconv.Itoa(os.Getuid()))
	}
	return filepath.Join(dir, "zerocopy", "serve.toml")
}

// WriteReceiver writes the receiver file, readable only by the owner.
// Creates the parent directory if needed.
func WriteReceiver(r Receiver) error {
	path := ReceiverPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("encode receiver: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// ReadReceiver reads the receiver file. Returns os.ErrNotExist if the file
// does not exist.
func ReadReceiver() (Receiver, error) {
	var r Receiver
	_, err := toml.DecodeFile(ReceiverPath(), &r)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Receiver{}, os.ErrNotExist
		}
		return Receiver{}, err
	}
	return r, nil
}

// RemoveReceiver removes the receiver file (best-effort).
func RemoveReceiver() {
	os.Remove(ReceiverPath()) //nolint:errcheck // best-effort cleanup on shutdown
}
