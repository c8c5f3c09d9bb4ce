// Package report validates stats identifiers and persists the append-only
// history of statistics reports, one JSON file per identifier.
package report

import "fmt"

const (
	MinIDLength = 11
	MaxIDLength = 32
)

// ValidateID checks that statsID only uses [A-Za-z0-9_-] and that its length
// is within [MinIDLength, MaxIDLength]. A valid id is safe to use as a file
// name: it can contain neither path separators nor dots.
func ValidateID(statsID string) error {
	for i := 0; i < len(statsID); i++ {
		if !isIDByte(statsID[i]) {
			return fmt.Errorf("%w: invalid character %q at offset %d", ErrInvalidIdentifier, statsID[i], i)
		}
	}
	if len(statsID) < MinIDLength || len(statsID) > MaxIDLength {
		return fmt.Errorf("%w: wrong length %d, want %d..%d", ErrInvalidIdentifier, len(statsID), MinIDLength, MaxIDLength)
	}
	return nil
}

func isIDByte(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}
