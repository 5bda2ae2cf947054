package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/school-show-booking/internal/service"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"capacity", &service.CapacityExceededError{SlotID: 1, Requested: 5, Remaining: 2}, http.StatusConflict},
		{"transition", fmt.Errorf("%w: HOLD -> COMPLETED", service.ErrInvalidTransition), http.StatusConflict},
		{"day closed", service.ErrDayClosed, http.StatusConflict},
		{"already closed", service.ErrAlreadyClosed, http.StatusConflict},
		{"no rule", service.ErrPricingRuleNotFound, http.StatusUnprocessableEntity},
		{"not found", fmt.Errorf("booking 9: %w", service.ErrNotFound), http.StatusNotFound},
		{"invalid", service.ErrInvalidInput, http.StatusBadRequest},
		{"transient", service.ErrTransient, http.StatusServiceUnavailable},
		{"consistency", &service.ConsistencyViolationError{SlotID: 1}, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			assert.NoError(t, respondError(c, tc.err))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestRespondErrorCarriesRemaining(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	_ = respondError(c, fmt.Errorf("create: %w", &service.CapacityExceededError{SlotID: 3, Requested: 40, Remaining: 10}))
	assert.JSONEq(t, `{"error":"capacity_exceeded","message":"create: capacity exceeded on slot 3: requested 40, remaining 10","remaining":10}`, rec.Body.String())
}

func TestValidatorUpperIdent(t *testing.T) {
	v := NewValidator()
	type q struct {
		P string `validate:"upper_ident"`
	}
	assert.NoError(t, v.Validate(q{P: "TRAVEL_HALF_DAY"}))
	assert.Error(t, v.Validate(q{P: "travel"}))
	assert.Error(t, v.Validate(q{P: ""}))
}
