package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

type quantityRequest struct {
	Action string `json:"action" validate:"required,oneof=increment decrement"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      quantityRequest
		wantMsg string
	}{
		{"increment", quantityRequest{Action: "increment"}, ""},
		{"decrement", quantityRequest{Action: "decrement"}, ""},
		{"missing", quantityRequest{}, "is required"},
		{"unknown", quantityRequest{Action: "reset"}, "must be one of: increment decrement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.wantMsg, valErr.Fields()["action"])
			assert.Contains(t, valErr.Error(), "field 'action'")
		})
	}
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("id", "12", "required,max=8"))

	err := Var("id", "", "required,max=8")
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, map[string]string{"id": "is required"}, valErr.Fields())

	err = Var("id", "123456789", "required,max=8")
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be at most 8 characters", valErr.Fields()["id"])
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		valErr  bool
	}{
		{"valid", `{"action":"increment"}`, false, false},
		{"malformed", `{"action":`, true, false},
		{"unknown field", `{"action":"increment","qty":3}`, true, false},
		{"trailing data", `{"action":"increment"}{"action":"decrement"}`, true, false},
		{"invalid value", `{"action":"triple"}`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst quantityRequest
			err := DecodeAndValidate(req, &dst)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "increment", dst.Action)
				return
			}
			require.Error(t, err)
			_, isValidation := err.(*ValidationError)
			assert.Equal(t, tt.valErr, isValidation)
			if !tt.valErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			}
		})
	}
}
