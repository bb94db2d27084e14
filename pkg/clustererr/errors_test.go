package clustererr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPreconditionFormatsMessage(t *testing.T) {
	err := NewPrecondition("resource %s on host %q", "r1", "h1")
	assert.EqualError(t, err, `precondition violation: resource r1 on host "h1"`)
}

func TestNewInvariantFormatsMessage(t *testing.T) {
	err := NewInvariant("processor %s already on host %q", "3-0", "h1")
	assert.EqualError(t, err, `invariant violation: processor 3-0 already on host "h1"`)
}

func TestPreconditionErrorMatchesWithErrorsAs(t *testing.T) {
	var target *PreconditionError
	err := error(NewPrecondition("boom"))
	assert.True(t, errors.As(err, &target))

	var wrongType *InvariantError
	assert.False(t, errors.As(err, &wrongType))
}

func TestInvariantErrorMatchesWithErrorsAs(t *testing.T) {
	var target *InvariantError
	err := error(NewInvariant("boom"))
	assert.True(t, errors.As(err, &target))
}
