package dto

// OrderStatusResponse is an order with its reconciliation verdict.
type OrderStatusResponse struct {
	ID            int64    `json:"id"`
	SalesOrder    string   `json:"sales_order,omitempty"`
	AssetType     string   `json:"asset_type"`
	Model         string   `json:"model"`
	Warehouse     string   `json:"warehouse"`
	Quantity      int      `json:"quantity"`
	MaterialType  string   `json:"material_type"`
	SerialNumbers []string `json:"serial_numbers"`
	IsDeleted     bool     `json:"is_deleted"`
	Status        string   `json:"status"`
	Details       string   `json:"details"`
}

// OrderGroupResponse rolls up the orders of one sales transaction.
type OrderGroupResponse struct {
	SalesOrder string                `json:"sales_order,omitempty"`
	AssetType  string                `json:"asset_type"`
	Model      string                `json:"model"`
	Warehouse  string                `json:"warehouse"`
	Status     string                `json:"status"`
	Quantity   int                   `json:"quantity"`
	Succeeded  int                   `json:"succeeded"`
	Failed     int                   `json:"failed"`
	Pending    int                   `json:"pending"`
	Orders     []OrderStatusResponse `json:"orders"`
}
