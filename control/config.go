package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults mandated by spec.md §4.F/§6.
const (
	DefaultPubRingSize     = 1024
	DefaultPubDataSize     = 1 << 20 // 1 MiB
	DefaultWSPayloadCap    = 16 << 10
	DefaultWSIdleTimeout   = 10 * time.Second
	DefaultWSBackpressure  = 1 << 20
	DefaultCloseDrainTicks = 100
)

// ParseSize parses a byte count accepting an optional K or M suffix
// (case-insensitive), e.g. "64K", "2M", "1048576". This is the "data-size"
// parsing spec.md §6 requires for pub node options.
func ParseSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := 1
	last := s[len(s)-1]
	switch last {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return int(n) * mult, nil
}

// NormalizePath applies spec.md §3's node path-prefix normalization: empty
// maps to "/", a leading "/" is used verbatim, anything else gets "/"
// prepended.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
