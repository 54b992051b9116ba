package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tally/internal/audit"
	"github.com/Additional-Code/tally/internal/dto"
	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/internal/identity"
	service "github.com/Additional-Code/tally/internal/service/audit"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

type fakeService struct {
	filter    audit.Filter
	scanReq   service.ScanRequest
	scanRes   audit.ScanResult
	clearIDs  []int64
	report    service.ClearReport
	principal identity.Principal
}

func (f *fakeService) WorkingSet(_ context.Context, filter audit.Filter) ([]entity.Device, error) {
	f.filter = filter
	return []entity.Device{
		{ID: 1, SerialNumber: "A1", Warehouse: "Trichy"},
		{ID: 2, SerialNumber: "A2", Warehouse: "Trichy", AssetCheck: entity.AssetMatched},
	}, nil
}

func (f *fakeService) Scan(ctx context.Context, req service.ScanRequest) (audit.ScanResult, error) {
	f.scanReq = req
	f.principal, _ = identity.FromContext(ctx)
	return f.scanRes, nil
}

func (f *fakeService) ClearAll(ctx context.Context, ids []int64) (service.ClearReport, error) {
	if _, err := identity.RequireMutator(ctx); err != nil {
		return service.ClearReport{}, err
	}
	f.clearIDs = ids
	return f.report, nil
}

func (f *fakeService) ClearMatched(_ context.Context, filter audit.Filter) (service.ClearReport, error) {
	f.filter = filter
	return f.report, nil
}

func (f *fakeService) RetryClear(_ context.Context, runID string) (service.ClearReport, error) {
	if runID != f.report.RunID {
		return service.ClearReport{}, errorbank.NotFound("clear run not found or expired")
	}
	return f.report, nil
}

func (f *fakeService) Report(_ context.Context, runID string) (service.ClearReport, error) {
	return f.RetryClear(context.Background(), runID)
}

func do(t *testing.T, svc AuditService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(identity.Middleware())
	Register(e, &Handler{svc: svc})

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(identity.HeaderEmail, "auditor@example.com")
	req.Header.Set(identity.HeaderRole, "operator")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDevices(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, svc, http.MethodGet, "/audit/devices?warehouse=Trichy,Chennai", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Trichy", "Chennai"}, svc.filter[audit.FieldWarehouse])

	var body struct {
		Data []dto.DeviceResponse `json:"data"`
		Meta map[string]int       `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "Unmatched", body.Data[0].AssetCheck)
	assert.Equal(t, 1, body.Meta["matched"])
}

func TestDevicesUnknownFilter(t *testing.T) {
	rec := do(t, &fakeService{}, http.MethodGet, "/audit/devices?colour=red", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScan(t *testing.T) {
	svc := &fakeService{scanRes: audit.ScanResult{
		Token:     "D9",
		Outcome:   audit.Outcome{Kind: audit.OutcomeFoundElsewhere, Warehouse: "Bangalore"},
		Device:    &entity.Device{ID: 9, SerialNumber: "D9", Warehouse: "Bangalore", AssetCheck: entity.FoundIn("Bangalore")},
		Persisted: true,
	}}
	rec := do(t, svc, http.MethodPost, "/audit/scan", `{"token":"D9","expected_warehouses":["Trichy"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, identity.RoleOperator, svc.principal.Role)
	assert.Equal(t, []string{"Trichy"}, svc.scanReq.ExpectedWarehouses)

	var body struct {
		Data dto.ScanResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Found in Bangalore", body.Data.Status)
	assert.True(t, body.Data.Persisted)
	assert.Equal(t, int64(9), body.Data.Device.ID)
}

func TestScanWriteFailureIsReported(t *testing.T) {
	svc := &fakeService{scanRes: audit.ScanResult{
		Token:   "A1",
		Outcome: audit.Outcome{Kind: audit.OutcomeMatched},
		Device:  &entity.Device{ID: 1},
		Err:     errorbank.Unavailable("network timeout"),
	}}
	rec := do(t, svc, http.MethodPost, "/audit/scan", `{"token":"A1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data dto.ScanResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Error", body.Data.Status)
	assert.Equal(t, "Matched", body.Data.Outcome)
	assert.Equal(t, "network timeout", body.Data.Error)
}

func TestClearStatusCodes(t *testing.T) {
	cases := []struct {
		outcome audit.ClearOutcome
		want    int
	}{
		{audit.ClearSucceeded, http.StatusOK},
		{audit.ClearNoop, http.StatusOK},
		{audit.ClearPartial, http.StatusMultiStatus},
		{audit.ClearFailed, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			svc := &fakeService{report: service.ClearReport{RunID: "run-1", Outcome: tc.outcome}}
			rec := do(t, svc, http.MethodPost, "/audit/clear", `{"ids":[1,2,3]}`)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, []int64{1, 2, 3}, svc.clearIDs)
		})
	}
}

func TestRetryUnknownRun(t *testing.T) {
	svc := &fakeService{report: service.ClearReport{RunID: "run-1"}}
	rec := do(t, svc, http.MethodPost, "/audit/clear/run-2/retry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, svc, http.MethodGet, "/audit/clear/run-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
