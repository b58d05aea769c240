//go:build !linux && !darwin && !solaris && !(freebsd && (amd64 || arm64 || riscv64)) && !(dragonfly && amd64)

package platform

import "runtime"

// stubAdapter is compiled in where no sendfile primitive is wired up.
// Callers detect it through Capabilities().Available.
type stubAdapter struct{}

func newAdapter() Adapter { return stubAdapter{} }

func (stubAdapter) Capabilities() Capabilities {
	return Capabilities{Platform: runtime.GOOS}
}

func (stubAdapter) Sendfile(_ Request) (Result, error) {
	return Result{}, ErrNotImplemented
}
