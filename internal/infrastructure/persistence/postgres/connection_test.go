package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/gjc-vemulawada/attendance-hub/pkg/retry"
)

func TestPingOutcome(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"bad password", &pgconn.PgError{Code: "28P01"}, true},
		{"missing database", fmt.Errorf("connect: %w", &pgconn.PgError{Code: "3D000"}), true},
		{"starting up", &pgconn.PgError{Code: "57P03"}, false},
		{"refused", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pingOutcome(tt.err)
			assert.Equal(t, tt.permanent, retry.IsPermanent(got))
			assert.Equal(t, !tt.permanent, retry.IsRetryable(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, pingOutcome(nil))
}
