package utils

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(5)

	require.NoError(t, err)
	assert.Len(t, code, 10)
	assert.Equal(t, strings.ToUpper(code), code)

	other, err := GenerateCode(5)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestNewTicketCode_Format(t *testing.T) {
	code, err := NewTicketCode("secret")

	require.NoError(t, err)
	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "TKT", parts[0])
	assert.Len(t, parts[1], 10)
	assert.Len(t, parts[2], 8)
}

func TestVerifyTicketCode(t *testing.T) {
	const secret = "secret"

	code, err := NewTicketCode(secret)
	require.NoError(t, err)

	assert.True(t, VerifyTicketCode(secret, code))
	assert.False(t, VerifyTicketCode("other-secret", code))
	assert.False(t, VerifyTicketCode(secret, code[:len(code)-1]+"X"), "tampered tag")
	assert.False(t, VerifyTicketCode(secret, code[:len(code)-2]), "truncated tag")
	assert.False(t, VerifyTicketCode(secret, "BAD-"+code), "wrong shape")
	assert.False(t, VerifyTicketCode(secret, "ORD-AAAAAAAAAA-11111111"), "wrong prefix")
	assert.False(t, VerifyTicketCode(secret, ""))
}

func TestCircuitBreaker_StaysClosed(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := cb.Do(ctx, func() error { return nil })
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, cb.CurrentState())
}

func TestCircuitBreaker_TripsOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()
	failure := errors.New("downstream unavailable")

	for i := 0; i < 100; i++ {
		_ = cb.Do(ctx, func() error { return failure })
	}

	assert.Equal(t, StateOpen, cb.CurrentState())

	err := cb.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Do(ctx, func() error {
		called = true
		return nil
	})

	assert.Error(t, err)
	assert.False(t, called, "fn must not run with a dead context")
}
