package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elys-network/yield-optimizer/internal/analyzer"
	"github.com/elys-network/yield-optimizer/internal/types"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{"nil", nil, types.KindNone},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), types.KindTimeout},
		{"canceled", context.Canceled, types.KindCanceled},
		{"gateway error", &Error{Op: "x", Kind: types.KindRejected, Err: errors.New("no")}, types.KindRejected},
		{"validation", fmt.Errorf("bad: %w", analyzer.ErrDuplicateID), types.KindInvalidData},
		{"input", ErrEmptyAccountID, types.KindInvalidInput},
		{"other", errors.New("connection reset"), types.KindNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: "list_protocols", Kind: types.KindNetwork, StatusCode: 503, Err: ErrUnexpectedStatus}
	assert.Contains(t, err.Error(), "status 503")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}
