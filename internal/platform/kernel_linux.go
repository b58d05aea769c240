//go:build linux

package platform

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// kernelAtLeast reports whether the running kernel release is at least
// major.minor.patch. Unparseable releases report false.
func kernelAtLeast(major, minor, patch int) bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}
	return releaseAtLeast(unix.ByteSliceToString(uname.Release[:]), major, minor, patch)
}

func releaseAtLeast(release string, major, minor, patch int) bool {
	want := [3]int{major, minor, patch}
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return false
	}

	var got [3]int
	for i, p := range parts {
		if idx := strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }); idx >= 0 {
			p = p[:idx]
		}
		if p == "" {
			if i < 2 {
				return false
			}
			break
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return false
		}
		got[i] = n
	}

	for i := range want {
		if got[i] != want[i] {
			return got[i] > want[i]
		}
	}
	return true
}
