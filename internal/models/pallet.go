package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of entry_date and return_date
const DateLayout = "2006-01-02"

// Status is the lifecycle state of a pallet
type Status string

const (
	StatusInStock  Status = "IN_STOCK"
	StatusReturned Status = "RETURNED"
)

// Valid reports whether s is one of the known lifecycle states
func (s Status) Valid() bool {
	return s == StatusInStock || s == StatusReturned
}

// Pallet is a physical unit of goods tracked by the warehouse.
// LocalID is generated by the originating device and never reassigned.
type Pallet struct {
	LocalID      string   `json:"local_id"`
	FirmName     string   `json:"firm_name"`
	PalletType   string   `json:"pallet_type"`
	BoxCount     int      `json:"box_count"`
	VehiclePlate string   `json:"vehicle_plate"`
	EntryDate    string   `json:"entry_date"`
	EntryTime    string   `json:"entry_time"`
	Temperature  string   `json:"temperature"`
	Note         string   `json:"note"`
	Status       Status   `json:"status"`
	ReturnDate   *string  `json:"return_date"`
	IsSynced     SyncFlag `json:"is_synced"`
}

// SyncFlag is the is_synced marker. Devices send it as a boolean or as 0/1;
// it is always stored and returned as a number.
type SyncFlag int

func (f *SyncFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null":
		return nil
	case "true":
		*f = 1
		return nil
	case "false":
		*f = 0
		return nil
	}

	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("is_synced must be a boolean or a number")
	}
	n, err := strconv.ParseFloat(raw.String(), 64)
	if err != nil {
		return fmt.Errorf("is_synced must be a boolean or a number")
	}
	if n != 0 {
		*f = 1
	} else {
		*f = 0
	}
	return nil
}

// IsEligibleForReturn reports whether the pallet can still be allocated to a return
func (p *Pallet) IsEligibleForReturn() bool {
	return p.Status == StatusInStock
}

// Normalize fills defaults the way an accepted sync record is stored.
// The server has accepted the record, so IsSynced is always 1.
func (p *Pallet) Normalize() {
	p.LocalID = strings.TrimSpace(p.LocalID)
	p.FirmName = strings.TrimSpace(p.FirmName)
	p.PalletType = strings.TrimSpace(p.PalletType)
	p.EntryDate = strings.TrimSpace(p.EntryDate)
	if p.Status == "" {
		p.Status = StatusInStock
	}
	if p.Status == StatusInStock {
		p.ReturnDate = nil
	}
	if p.ReturnDate != nil && strings.TrimSpace(*p.ReturnDate) == "" {
		p.ReturnDate = nil
	}
	p.IsSynced = 1
}

// Validate checks the required fields of a pallet record
func (p *Pallet) Validate() error {
	if p.LocalID == "" {
		return ErrMissingLocalID
	}
	if p.FirmName == "" {
		return ErrMissingFirmName
	}
	if p.PalletType == "" {
		return ErrMissingPalletType
	}
	if p.EntryDate == "" {
		return ErrMissingEntryDate
	}
	if !IsValidDate(p.EntryDate) {
		return ErrInvalidEntryDate
	}
	if p.BoxCount < 0 {
		return ErrNegativeBoxCount
	}
	if !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.ReturnDate != nil && !IsValidDate(*p.ReturnDate) {
		return ErrInvalidReturnDate
	}
	return nil
}

// IsValidDate reports whether s is a calendar date in DateLayout
func IsValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// PalletUpdate carries the mutable fields of a partial update.
// Nil fields are left untouched.
type PalletUpdate struct {
	FirmName     *string `json:"firm_name"`
	PalletType   *string `json:"pallet_type"`
	BoxCount     *int    `json:"box_count"`
	VehiclePlate *string `json:"vehicle_plate"`
	Note         *string `json:"note"`
	Temperature  *string `json:"temperature"`
	EntryTime    *string `json:"entry_time"`
}

// IsEmpty reports whether the update touches no field
func (u PalletUpdate) IsEmpty() bool {
	return u.FirmName == nil && u.PalletType == nil && u.BoxCount == nil &&
		u.VehiclePlate == nil && u.Note == nil && u.Temperature == nil && u.EntryTime == nil
}

// Validate rejects updates that would break the record invariants
func (u PalletUpdate) Validate() error {
	if u.FirmName != nil && strings.TrimSpace(*u.FirmName) == "" {
		return ErrMissingFirmName
	}
	if u.PalletType != nil && strings.TrimSpace(*u.PalletType) == "" {
		return ErrMissingPalletType
	}
	if u.BoxCount != nil && *u.BoxCount < 0 {
		return ErrNegativeBoxCount
	}
	return nil
}

// ReturnRequest asks for Count in-stock pallets of a firm and type to be returned
type ReturnRequest struct {
	FirmName   string `json:"firm_name"`
	PalletType string `json:"pallet_type"`
	Count      int    `json:"count"`
	Note       string `json:"note"`
}

// Validate checks the request before any candidate selection happens
func (r *ReturnRequest) Validate() error {
	r.FirmName = strings.TrimSpace(r.FirmName)
	r.PalletType = strings.TrimSpace(r.PalletType)
	if r.FirmName == "" || r.PalletType == "" {
		return ErrMissingReturnParams
	}
	if r.Count <= 0 {
		return ErrInvalidReturnCount
	}
	return nil
}
