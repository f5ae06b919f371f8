package gzfile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mode is the parsed form of the classical streaming library's gz-open
// mode string: a sequence of single-character flags, not a POSIX mode
// string.
type Mode struct {
	Read        bool
	Write       bool
	Append      bool
	CloseOnExec bool
	Exclusive   bool
}

// ParseMode decodes a mode string such as "wbe" or "rx" into a Mode.
// Unknown characters are rejected outright rather than silently ignored.
func ParseMode(s string) (Mode, error) {
	var m Mode
	for _, c := range s {
		switch c {
		case 'r':
			m.Read = true
		case 'w':
			m.Write = true
		case 'a':
			m.Write = true
			m.Append = true
		case 'b':
			// binary mode; no distinct text mode on this platform.
		case 'e':
			m.CloseOnExec = true
		case 'x':
			m.Exclusive = true
		default:
			return Mode{}, fmt.Errorf("gzfile: unrecognized mode flag %q", c)
		}
	}
	if !m.Read && !m.Write {
		return Mode{}, fmt.Errorf("gzfile: mode %q selects neither read nor write", s)
	}
	if m.Read && m.Write {
		return Mode{}, fmt.Errorf("gzfile: mode %q selects both read and write, which this layer does not support", s)
	}
	return m, nil
}

// openFlags computes the OS open(2) flags matching this mode.
func (m Mode) openFlags() int {
	var flags int
	switch {
	case m.Read:
		flags = unix.O_RDONLY
	case m.Append:
		flags = unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND
	default:
		flags = unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC
	}
	if m.CloseOnExec {
		flags |= unix.O_CLOEXEC
	}
	if m.Exclusive {
		flags |= unix.O_EXCL
	}
	return flags
}
