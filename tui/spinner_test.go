package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpinWithoutTTYRunsAction(t *testing.T) {
	captureOutput(t)
	ran := false
	err := Spin(context.Background(), "Requesting OTP", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ran)

	boom := errors.New("boom")
	err = Spin(context.Background(), "Requesting OTP", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
