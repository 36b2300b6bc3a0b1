package core

import (
	"fmt"
	"strconv"
	"strings"
)

// CompareCursors orders a and b under ordering. It returns -1, 0 or 1. A
// cursor that cannot be read under the declared ordering is an error.
func CompareCursors(ordering CursorOrdering, a, b string) (int, error) {
	switch ordering {
	case OrderNumeric:
		x, err := strconv.ParseUint(strings.TrimSpace(a), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrMalformedCursor, a, err)
		}
		y, err := strconv.ParseUint(strings.TrimSpace(b), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrMalformedCursor, b, err)
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		default:
			return 0, nil
		}
	case OrderLexical, "":
		return strings.Compare(a, b), nil
	default:
		return 0, fmt.Errorf("unknown cursor ordering %q", ordering)
	}
}

// Advances reports whether next strictly follows prev. An empty prev means
// no cursor has been accepted yet, so any well-formed next advances.
func Advances(ordering CursorOrdering, prev, next string) error {
	if next == "" {
		return fmt.Errorf("%w: empty cursor", ErrMalformedCursor)
	}
	if prev == "" {
		_, err := CompareCursors(ordering, next, next)
		return err
	}
	c, err := CompareCursors(ordering, prev, next)
	if err != nil {
		return err
	}
	if c >= 0 {
		return fmt.Errorf("%w: %q after %q", ErrCursorRegression, next, prev)
	}
	return nil
}
