package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tally/internal/dto"
	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/reconcile"
	service "github.com/Additional-Code/tally/internal/service/order"
)

type fakeService struct {
	got     service.StatusQuery
	results []reconcile.Result
}

func (f *fakeService) Statuses(_ context.Context, q service.StatusQuery) ([]reconcile.Result, error) {
	f.got = q
	return f.results, nil
}

func (f *fakeService) Groups(_ context.Context, q service.StatusQuery) ([]reconcile.GroupResult, error) {
	f.got = q
	return reconcile.ReconcileGroups(f.results), nil
}

func serve(t *testing.T, svc StatusService, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	Register(e, &Handler{svc: svc})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStatuses(t *testing.T) {
	svc := &fakeService{results: []reconcile.Result{{
		Order:   entity.Order{ID: 1, SalesOrder: "SO-1", Quantity: 2, MaterialType: entity.MaterialInward},
		Verdict: reconcile.Verdict{Status: reconcile.Pending, Details: "No serial numbers provided"},
	}}}

	rec := serve(t, svc, "/orders/status?sales_order=SO-1&include_deleted=true&cross_order=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.StatusQuery{SalesOrder: "SO-1", IncludeDeleted: true, CrossOrder: true}, svc.got)

	var body struct {
		Data []dto.OrderStatusResponse `json:"data"`
		Meta struct {
			Counts map[string]int `json:"counts"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Pending", body.Data[0].Status)
	assert.Equal(t, []string{}, body.Data[0].SerialNumbers)
	assert.Equal(t, 1, body.Meta.Counts["Pending"])
}

func TestStatusesRejectsBadFlag(t *testing.T) {
	rec := serve(t, &fakeService{}, "/orders/status?include_deleted=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGroups(t *testing.T) {
	svc := &fakeService{results: []reconcile.Result{
		{Order: entity.Order{ID: 1, SalesOrder: "SO-1", Quantity: 1}, Verdict: reconcile.Verdict{Status: reconcile.Success}},
		{Order: entity.Order{ID: 2, SalesOrder: "SO-1", Quantity: 1}, Verdict: reconcile.Verdict{Status: reconcile.Failed}},
	}}
	rec := serve(t, svc, "/orders/groups")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []dto.OrderGroupResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Failed", body.Data[0].Status)
	assert.Equal(t, 2, body.Data[0].Quantity)
	assert.Len(t, body.Data[0].Orders, 2)
}
