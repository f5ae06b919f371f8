// Package config holds the fixed set of runtime knobs that steer back-end
// dispatch, plus the loader for the on-disk key=value configuration file.
package config

import "sync/atomic"

// Option identifies one entry of the fixed configuration enumeration. The
// order here is significant only in that it fixes the slot each option
// occupies in Store's backing array — it is not meaningful otherwise.
type Option int

const (
	UseQATCompress Option = iota
	UseQATUncompress
	UseIAACompress
	UseIAAUncompress
	UseZlibCompress
	UseZlibUncompress
	IAACompressPercentage
	IAAUncompressPercentage
	IAAPrependEmptyBlock
	QATPeriodicalPolling
	QATCompressionLevel
	QATCompressionAllowChunking
	IgnoreZlibDictionary
	LogLevel
	LogStatsSamples
	numOptions
)

// spec describes one integer option: its config-file key, default, and
// inclusive valid range. Out-of-range or malformed values keep the default
// and are logged, never zeroed.
type spec struct {
	key     string
	def     uint32
	min     uint32
	max     uint32
}

var specs = [numOptions]spec{
	UseQATCompress:              {"use_qat_compress", 1, 0, 1},
	UseQATUncompress:            {"use_qat_uncompress", 1, 0, 1},
	UseIAACompress:               {"use_iaa_compress", 0, 0, 1},
	UseIAAUncompress:             {"use_iaa_uncompress", 0, 0, 1},
	UseZlibCompress:              {"use_zlib_compress", 1, 0, 1},
	UseZlibUncompress:            {"use_zlib_uncompress", 1, 0, 1},
	IAACompressPercentage:        {"iaa_compress_percentage", 50, 0, 100},
	IAAUncompressPercentage:      {"iaa_uncompress_percentage", 50, 0, 100},
	IAAPrependEmptyBlock:         {"iaa_prepend_empty_block", 0, 0, 1},
	QATPeriodicalPolling:         {"qat_periodical_polling", 0, 0, 1},
	QATCompressionLevel:          {"qat_compression_level", 1, 1, 9},
	QATCompressionAllowChunking:  {"qat_compression_allow_chunking", 0, 0, 1},
	IgnoreZlibDictionary:         {"ignore_zlib_dictionary", 0, 0, 1},
	LogLevel:                     {"log_level", 2, 0, 2},
	LogStatsSamples:              {"log_stats_samples", 1000, 0, 1<<32 - 1},
}

// logFileKey and logFileMaxLen describe the one non-integer option.
const logFileKey = "log_file"
const logFileMaxLen = 4096

// DefaultConfigPath is where Load looks when called with an empty path.
const DefaultConfigPath = "/etc/zlib-accel.conf"

// Store is the global, lock-free configuration array. All integer options
// live in a fixed-size array of atomic words; reads and writes only need
// single-word atomicity because every option is an advisory heuristic, not
// a correctness-critical value.
type Store struct {
	values  [numOptions]atomic.Uint32
	logFile atomic.Pointer[string]
}

// NewStore returns a Store initialized to every option's documented default.
func NewStore() *Store {
	s := &Store{}
	for opt, sp := range specs {
		s.values[opt].Store(sp.def)
	}
	empty := ""
	s.logFile.Store(&empty)
	return s
}

// Get returns the current value of opt.
func (s *Store) Get(opt Option) uint32 {
	return s.values[opt].Load()
}

// Set unconditionally overwrites opt's value, bypassing range validation.
// Used by tests and by Load after validating a parsed value.
func (s *Store) Set(opt Option, value uint32) {
	s.values[opt].Store(value)
}

// GetBool is a convenience wrapper for the many {0,1} options.
func (s *Store) GetBool(opt Option) bool {
	return s.Get(opt) != 0
}

// LogFile returns the configured log sink path, or "" if none is set.
func (s *Store) LogFile() string {
	return *s.logFile.Load()
}

// SetLogFile stores the log sink path.
func (s *Store) SetLogFile(path string) {
	p := path
	s.logFile.Store(&p)
}

// global is the process-wide configuration array every dispatch decision
// reads from, matching the original's single global configs[] array.
var global = NewStore()

// Global returns the process-wide Store.
func Global() *Store { return global }

// Get reads an option from the global Store.
func Get(opt Option) uint32 { return global.Get(opt) }

// GetBool reads a {0,1} option from the global Store as a bool.
func GetBool(opt Option) bool { return global.GetBool(opt) }

// Set writes an option on the global Store. Exposed for tests that need to
// flip a knob without going through a config file.
func Set(opt Option, value uint32) { global.Set(opt, value) }
