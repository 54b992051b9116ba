package dto

import "time"

// DeviceResponse is a device as shown in the audit working set.
type DeviceResponse struct {
	ID           int64      `json:"id"`
	SerialNumber string     `json:"serial_number"`
	OrderID      *int64     `json:"order_id,omitempty"`
	MaterialType string     `json:"material_type,omitempty"`
	AssetType    string     `json:"asset_type"`
	Model        string     `json:"model"`
	Warehouse    string     `json:"warehouse"`
	AssetCheck   string     `json:"asset_check"`
	UpdatedBy    string     `json:"updated_by,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// ScanRequest is one scanned serial number or device id.
type ScanRequest struct {
	Token              string              `json:"token" validate:"required"`
	ExpectedWarehouses []string            `json:"expected_warehouses"`
	Filter             map[string][]string `json:"filter"`
}

// ScanResponse reports the scan outcome and whether it was stored.
type ScanResponse struct {
	Token     string          `json:"token"`
	Outcome   string          `json:"outcome"`
	Status    string          `json:"status"`
	Persisted bool            `json:"persisted"`
	Device    *DeviceResponse `json:"device,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ClearRequest lists the devices to reset to Unmatched.
type ClearRequest struct {
	IDs []int64 `json:"ids" validate:"dive,gt=0"`
}

// ClearMatchedRequest selects the working set slice to reset.
type ClearMatchedRequest struct {
	Filter map[string][]string `json:"filter"`
}

// FailedBatchResponse is a batch whose update did not go through.
type FailedBatchResponse struct {
	IDs      []int64 `json:"ids"`
	Attempts int     `json:"attempts"`
	Kind     string  `json:"kind"`
	Error    string  `json:"error"`
}

// ClearResponse is the report of one clear run.
type ClearResponse struct {
	RunID         string                `json:"run_id,omitempty"`
	ParentRunID   string                `json:"parent_run_id,omitempty"`
	Outcome       string                `json:"outcome"`
	Requested     int                   `json:"requested"`
	UpdatedIDs    []int64               `json:"updated_ids"`
	FailedBatches []FailedBatchResponse `json:"failed_batches"`
	Message       string                `json:"message"`
}
