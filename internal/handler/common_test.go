package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.PermissionDenied("no"), http.StatusForbidden},
		{apperr.NotFound("plan %d", 1), http.StatusNotFound},
		{apperr.Conflict("dup"), http.StatusConflict},
		{&apperr.TransitionError{Machine: "m", From: "a", To: "b"}, http.StatusConflict},
		{apperr.Validation("bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperr.NotFound("x")), http.StatusNotFound},
		{errors.New("db exploded"), http.StatusInternalServerError},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, writeError(c, zaptest.NewLogger(t), tc.err))
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
		if tc.want == http.StatusInternalServerError {
			assert.NotContains(t, rec.Body.String(), "exploded")
		}
	}
}

func TestPage(t *testing.T) {
	e := echo.New()
	ctx := func(q string) echo.Context {
		return e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+q, nil), httptest.NewRecorder())
	}
	skip, limit, err := page(ctx(""))
	require.NoError(t, err)
	assert.Equal(t, 0, skip)
	assert.Equal(t, 50, limit)

	skip, limit, err = page(ctx("skip=10&limit=1000"))
	require.NoError(t, err)
	assert.Equal(t, 10, skip)
	assert.Equal(t, 200, limit)

	_, _, err = page(ctx("skip=-1"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, _, err = page(ctx("limit=x"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPlanStatus(t *testing.T) {
	assert.Equal(t, model.PlanActive, planStatus("active"))
	assert.Equal(t, model.PlanCompleted, planStatus(" COMPLETED "))
	assert.Equal(t, model.PlanCanceled, planStatus("Canceled"))
	assert.Equal(t, model.PlanStatus(""), planStatus(""))
}

func TestParseID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("0")
	_, err := parseID(c, "id")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	c.SetParamValues("12")
	id, err := parseID(c, "id")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)
}
