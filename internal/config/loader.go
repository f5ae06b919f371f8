package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// logFileCharsetOK reports whether v is an acceptable log_file value: at
// most logFileMaxLen bytes, no NUL, and only characters from [A-Za-z0-9._/-].
func logFileCharsetOK(v string) bool {
	if len(v) > logFileMaxLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == 0:
			return false
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '/' || c == '-':
		default:
			return false
		}
	}
	return true
}

// Load reads path (or DefaultConfigPath if empty) into s. It refuses files
// that do not exist or that resolve through a symbolic link, returning
// false without mutating any option. Per-line `key = value` pairs are
// parsed with '#'-to-end-of-line comments stripped, trailing CR removed,
// and whitespace trimmed from both key and value; the last occurrence of a
// key wins.
//
// Integer options are parsed as a full, non-negative base-10 integer
// within the option's declared range; out-of-range or partially-consumed
// values leave the prior value in place and are logged, never zeroed.
func (s *Store) Load(path string) bool {
	if path == "" {
		path = DefaultConfigPath
	}

	info, err := os.Lstat(path)
	if err != nil {
		log.Warnf("config: cannot stat %s: %v", path, err)
		return false
	}
	if info.Mode()&os.ModeSymlink != 0 {
		log.Warnf("config: refusing to load %s: is a symlink", path)
		return false
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW, 0)
	if err != nil {
		log.Warnf("config: cannot open %s: %v", path, err)
		return false
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()

	raw := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" {
			continue
		}
		raw[key] = val // last occurrence wins
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("config: error reading %s: %v", path, err)
		return false
	}

	for opt, sp := range specs {
		v, ok := raw[sp.key]
		if !ok {
			continue
		}
		s.applyInt(Option(opt), sp, v)
	}

	if v, ok := raw[logFileKey]; ok {
		if logFileCharsetOK(v) {
			s.SetLogFile(v)
		} else {
			log.Warnf("config: rejecting %s=%q: invalid character or length", logFileKey, v)
		}
	}

	return true
}

func (s *Store) applyInt(opt Option, sp spec, raw string) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		log.Warnf("config: rejecting %s=%q: %v (keeping %d)", sp.key, raw, err, s.Get(opt))
		return
	}
	if n < uint64(sp.min) || n > uint64(sp.max) {
		log.Warnf("config: rejecting %s=%q: out of range [%d,%d] (keeping %d)",
			sp.key, raw, sp.min, sp.max, s.Get(opt))
		return
	}
	s.Set(opt, uint32(n))
}

// Load loads path into the global Store.
func Load(path string) bool { return global.Load(path) }

// String renders every option's current value, for diagnostics.
func (s *Store) String() string {
	var b strings.Builder
	for opt, sp := range specs {
		fmt.Fprintf(&b, "%s = %d\n", sp.key, s.Get(Option(opt)))
	}
	fmt.Fprintf(&b, "%s = %s\n", logFileKey, s.LogFile())
	return b.String()
}
