package models

import "time"

// StatusResponse is returned by the status endpoint
type StatusResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	IP        string    `json:"ip"`
	Uptime    int64     `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncItemError reports one rejected record of a sync batch
type SyncItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// SyncResult is returned after a sync batch
type SyncResult struct {
	Message  string          `json:"message"`
	Received int             `json:"received"`
	Inserted int             `json:"inserted"`
	Errors   []SyncItemError `json:"errors"`
}

// PalletListResponse is returned when listing pallets
type PalletListResponse struct {
	Count int       `json:"count"`
	Data  []*Pallet `json:"data"`
}

// ReturnResult is returned after a successful return
type ReturnResult struct {
	Message       string `json:"message"`
	ReturnedCount int64  `json:"returned_count"`
}

// InsufficientStockResponse is returned when a return asks for more than is in stock
type InsufficientStockResponse struct {
	Error     string `json:"error"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// MessageResponse acknowledges a mutation of a single pallet
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// StockSummary aggregates one firm and pallet type
type StockSummary struct {
	FirmName           string `json:"firm_name"`
	PalletType         string `json:"pallet_type"`
	InStock            int    `json:"in_stock"`
	Returned           int    `json:"returned"`
	InStockBoxes       int    `json:"in_stock_boxes"`
	AverageTemperature string `json:"average_temperature"`
}

// StockSummaryResponse is returned by the summary endpoint
type StockSummaryResponse struct {
	Count int            `json:"count"`
	Data  []StockSummary `json:"data"`
}

// StockStats is the payload of the periodic stats event
type StockStats struct {
	InStock   int       `json:"in_stock"`
	Returned  int       `json:"returned"`
	Uptime    int64     `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// CleanupResult reports a date-scoped administrative correction
type CleanupResult struct {
	Date         string `json:"date"`
	DeletedCount int64  `json:"deleted_count"`
	ResetCount   int64  `json:"reset_count"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}
