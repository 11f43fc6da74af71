package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"sidekick/internal/checklist"
	"sidekick/internal/repo"
)

func TestHandleErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("inspection i-1 changed concurrently (version 3): %w", repo.ErrConflict), http.StatusConflict, "conflict"},
		{fmt.Errorf("inspection x: %w", repo.ErrNotFound), http.StatusNotFound, "not_found"},
		{checklist.ErrStaleConfirmation, http.StatusUnprocessableEntity, "validation_failed"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		got := handleError(tc.err)
		ae, ok := got.(*apiError)
		if !ok {
			t.Fatalf("%v: unexpected error type %T", tc.err, got)
		}
		if ae.status != tc.status || ae.Body.Code != tc.code {
			t.Fatalf("%v: got %d %s, want %d %s", tc.err, ae.status, ae.Body.Code, tc.status, tc.code)
		}
	}
}
