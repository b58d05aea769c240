//go:build unix

package platform

import (
	"errors"

	"golang.org/x/sys/unix"
)

// settle normalizes one native attempt. retry is true only when the call was
// interrupted before any bytes moved and the retry budget is not spent.
func settle(sent int64, err error, attempt int) (res Result, retry bool, outErr error) {
	if sent < 0 {
		sent = 0
	}
	res.Sent = sent

	var errno unix.Errno
	if err == nil || !errors.As(err, &errno) {
		return res, false, err
	}

	switch errno {
	case unix.EINTR:
		if sent > 0 {
			return res, false, nil
		}
		if attempt < maxIntrRetries {
			return res, true, nil
		}
		res.Interrupted = true
		return res, false, nil
	case unix.EAGAIN, unix.EBUSY:
		// FreeBSD reports EBUSY when SF_NODISKIO would have to wait on disk.
		res.WouldBlock = true
		return res, false, nil
	}
	return res, false, errno
}

func classifyErrno(err error) Failure {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return FailureFatal
	}
	switch errno {
	case unix.ENOTSOCK, unix.EOPNOTSUPP, unix.ENOTCONN, unix.ESPIPE:
		return FailureDescriptor
	case unix.ENOSYS:
		return FailureNotImplemented
	case unix.EOVERFLOW, unix.EFBIG:
		return FailureOverflow
	}
	return FailureFatal
}
