package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"interruptd/pkg/util"
)

func TestDispositionFor(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		attempts  int64
		want      Disposition
	}{
		{name: "success", err: nil, want: Ack},
		{name: "retryable first attempt", err: context.DeadlineExceeded, retryable: true, attempts: 1, want: Requeue},
		{name: "retryable at limit", err: context.DeadlineExceeded, retryable: true, attempts: 3, want: Requeue},
		{name: "retryable exhausted", err: context.DeadlineExceeded, retryable: true, attempts: 4, want: DeadLetter},
		{name: "not retryable", err: errors.New("bad payload"), retryable: false, attempts: 1, want: DeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DispositionFor(tt.err, tt.retryable, tt.attempts, 3))
		})
	}
}

func TestDispositionFor_ClassifiedErrors(t *testing.T) {
	retryable, _ := util.IsRetryableError(pgx.ErrNoRows)
	assert.Equal(t, DeadLetter, DispositionFor(pgx.ErrNoRows, retryable, 1, 3))

	err := json.Unmarshal([]byte("{"), &struct{}{})
	retryable, _ = util.IsRetryableError(err)
	assert.Equal(t, DeadLetter, DispositionFor(err, retryable, 1, 3))

	retryable, _ = util.IsRetryableError(context.DeadlineExceeded)
	assert.Equal(t, Requeue, DispositionFor(context.DeadlineExceeded, retryable, 1, 3))
}
