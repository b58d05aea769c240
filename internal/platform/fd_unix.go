//go:build unix

package platform

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Stat reports the kind of object behind fd and, for regular files, its size.
func Stat(fd int) (Kind, int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return KindOther, 0, err
	}

	//nolint:gosec // G115: mode bits fit in uint32 on every platform
	switch uint32(st.Mode) & unix.S_IFMT {
	case unix.S_IFREG:
		return KindRegular, st.Size, nil
	case unix.S_IFSOCK:
		return KindSocket, 0, nil
	case unix.S_IFIFO:
		return KindFIFO, 0, nil
	case unix.S_IFDIR:
		return KindDir, 0, nil
	case unix.S_IFCHR:
		return KindCharDevice, 0, nil
	}
	return KindOther, 0, nil
}

// WriteAll writes all of p to fd. A non-blocking fd that reports EAGAIN is
// waited on with poll(2) until it becomes writable.
func WriteAll(fd int, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(fd, p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if perr := waitWritable(fd); perr != nil {
				return written, perr
			}
		default:
			return written, err
		}
	}
	return written, nil
}

func waitWritable(fd int) error {
	//nolint:gosec // G115: fd values are small non-negative integers
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		// POLLERR and POLLHUP are left for the next write to report.
		return err
	}
}
