//go:build !unix

package platform

// Stat always fails on non-Unix platforms.
func Stat(_ int) (Kind, int64, error) {
	return KindOther, 0, ErrNotImplemented
}

// WriteAll always fails on non-Unix platforms.
func WriteAll(_ int, _ []byte) (int, error) {
	return 0, ErrNotImplemented
}

func classifyErrno(_ error) Failure {
	return FailureFatal
}
