package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func up(context.Context) (Status, error) { return StatusUp, nil }

func down(context.Context) (Status, error) { return StatusDown, errors.New("hub stopped") }

func TestChecker_Overall_Status(t *testing.T) {
	req := require.New(t)

	// Given no components the service is down
	c := NewChecker(0)
	req.Equal(StatusDown, c.GetOverallStatus())

	// When every component is up
	c.RegisterComponent("hub", up)
	c.RegisterComponent("event_log", up)
	c.CheckNow(context.Background())
	req.Equal(StatusUp, c.GetOverallStatus())

	// When one of them fails
	c.RegisterComponent("hub", down)
	c.CheckNow(context.Background())
	req.Equal(StatusDegraded, c.GetOverallStatus())

	hub, err := c.GetComponentStatus("hub")
	req.NoError(err)
	req.Equal("hub stopped", hub.Error)

	_, err = c.GetComponentStatus("nope")
	req.Error(err)
}

func TestChecker_Notifies_Subscribers(t *testing.T) {
	var last atomic.Value
	c := NewChecker(0)
	c.RegisterComponent("hub", up)
	c.Subscribe(func(s Status) { last.Store(s) })

	c.CheckNow(context.Background())

	require.Equal(t, StatusUp, last.Load())
}

func TestChecker_Http_Handler(t *testing.T) {
	req := require.New(t)
	c := NewChecker(0)
	c.RegisterComponent("hub", up)
	c.RegisterComponent("event_log", up)
	c.CheckNow(context.Background())
	handler := c.HTTPHandler()

	// Full report
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	req.Equal(http.StatusOK, rec.Code)
	var body struct {
		Status     Status      `json:"status"`
		Components []Component `json:"components"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal(StatusUp, body.Status)
	req.Len(body.Components, 2)
	req.Equal("event_log", body.Components[0].Name)

	// Plain text
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?format=simple", nil))
	req.Equal("up", rec.Body.String())

	// Single component
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?component=hub", nil))
	req.JSONEq(`{"name":"hub","status":"up"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?component=missing", nil))
	req.Equal(http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	req.Equal(http.StatusMethodNotAllowed, rec.Code)
}

func TestChecker_Down_Returns_Unavailable(t *testing.T) {
	c := NewChecker(0)
	c.RegisterComponent("hub", down)
	c.CheckNow(context.Background())

	rec := httptest.NewRecorder()
	c.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?format=simple", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "down", rec.Body.String())
}

func TestChecker_Start_And_Stop(t *testing.T) {
	c := NewChecker(0)
	c.RegisterComponent("hub", up)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.Equal(t, StatusUp, c.GetOverallStatus())
	require.NotPanics(t, func() {
		c.Stop()
		c.Stop()
	})
}
