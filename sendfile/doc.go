// Package sendfile moves bytes from a regular file to a socket with the
// operating system's zero-copy sendfile primitive.
//
// Each call to Transfer is exactly one native attempt. The engine keeps no
// state between calls: the caller owns the offset, decides how to wait when
// the destination reports WouldBlock, and stops when it sees Eof. The
// destination descriptor must already be in non-blocking mode.
//
// Platforms differ in ways the engine reports rather than hides. On Linux and
// Solaris a zero Length transfers nothing and returns Complete immediately; on
// FreeBSD, DragonFly and macOS it means "until end of file". Headers and
// trailers are native on the BSDs and macOS and are only emulated with plain
// writes elsewhere when the engine is built WithEmulation(true).
package sendfile
