package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// The insert guard in Upsert must cover exactly the states that reserve a
// match key, in particular APPLIED.
func TestRequeueGuardSQL(t *testing.T) {
	want := "'PENDING', 'APPROVED', 'DISPATCHING', 'APPLIED', 'REJECTED'"
	if requeueGuardSQL != want {
		t.Errorf("requeueGuardSQL = %q, want %q", requeueGuardSQL, want)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("claim entry: %w", &pgconn.PgError{Code: "23505"}), true},
		{"other pg error", &pgconn.PgError{Code: "23503"}, false},
	}
	for _, c := range cases {
		if got := isUniqueViolation(c.err); got != c.want {
			t.Errorf("%s: isUniqueViolation = %t, want %t", c.name, got, c.want)
		}
	}
}
