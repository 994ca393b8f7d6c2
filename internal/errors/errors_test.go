package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(ErrCapacityExceeded))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("book: %w", ErrAlreadyCheckedIn)))
	assert.Equal(t, KindUnauthorized, KindOf(ErrInvalidCredential))
	assert.Equal(t, KindNotFound, KindOf(ErrTicketNotFound))
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestValidationMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("list: %w", Validation("limit must be between %d and %d", 1, 100))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrCapacityExceeded))
	assert.Equal(t, "list: limit must be between 1 and 100", err.Error())
}

func TestConflictsAreDistinguishable(t *testing.T) {
	conflicts := []*Error{ErrEventNotBookable, ErrEventNotOpen, ErrDuplicateBooking, ErrCapacityExceeded, ErrAlreadyCheckedIn, ErrTicketCanceled}
	seen := map[string]bool{}
	for _, c := range conflicts {
		assert.False(t, seen[c.Code], "duplicate code %s", c.Code)
		seen[c.Code] = true
		for _, other := range conflicts {
			if other != c {
				assert.False(t, errors.Is(c, other))
			}
		}
	}
}
