package bootpatch

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddress parses a physical load address. Like strtol with base 0, it
// accepts decimal, 0x-prefixed hexadecimal and 0-prefixed octal numbers. The
// whole string must be consumed and the value must fit into 32 bits.
func ParseAddress(s string) (uint32, error) {
	// strconv accepts Go digit separators with base 0, the C tools do not.
	if strings.Contains(s, "_") {
		return 0, fmt.Errorf("%w: %s is not a valid 32 bit unsigned number", ErrArgument, s)
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a valid 32 bit unsigned number", ErrArgument, s)
	}
	return uint32(v), nil
}
