package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		class     Class
		retryable bool
	}{
		{code: CodeBookingNotFound, class: ClassNotFound},
		{code: CodeCompanyNotFound, class: ClassNotFound},
		{code: CodeInvalidBookingState, class: ClassState},
		{code: CodeCompanyNotActive, class: ClassState},
		{code: CodeAlreadyAssigned, class: ClassIdempotency},
		{code: CodeNoEligibleCompany, class: ClassExhausted},
		{code: CodeConflict, class: ClassTransient, retryable: true},
		{code: CodeInternal, class: ClassInternal},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		assert.Equal(t, tt.class, meta.Class, "code %s", tt.code)
		assert.Equal(t, tt.retryable, meta.Retryable, "code %s", tt.code)
		assert.NotEmpty(t, meta.PublicMessage, "code %s", tt.code)
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, ClassInternal, MetadataFor("SOMETHING_UNKNOWN").Class)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeInternal, cause, "renumber positions")
	require.True(t, stdErrors.Is(wrapped, cause))
	assert.Contains(t, wrapped.Error(), "connection reset")
	assert.Equal(t, CodeInternal, wrapped.Code())
}

func TestIsAndClassOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("assign booking 7: %w", New(CodeNoEligibleCompany, "queue empty"))
	assert.True(t, Is(err, CodeNoEligibleCompany))
	assert.False(t, Is(err, CodeConflict))
	assert.Equal(t, ClassExhausted, ClassOf(err))
	assert.Equal(t, ClassInternal, ClassOf(stdErrors.New("plain")))
	assert.Nil(t, As(nil))
}

func TestDetailsRoundTrip(t *testing.T) {
	existing := map[string]int64{"assignment_id": 12}
	err := New(CodeAlreadyAssigned, "booking 3").WithDetails(existing)
	assert.Equal(t, existing, As(err).Details())
}
