package devices

import (
	"strings"
	"time"

	"github.com/assettrack/assettrack/internal/platform/httpx"
)

// Derived issuance states.
const (
	StateAvailable = "AVAILABLE"
	StateIssued    = "ISSUED"
)

var (
	// ErrNotFound indicates the device does not exist.
	ErrNotFound = httpx.NewError(httpx.ErrNotFound, "Device not found")
	// ErrDuplicateDeviceID indicates the business identifier is already registered.
	ErrDuplicateDeviceID = httpx.NewError(httpx.ErrConflict, "Device ID already registered")
)

// Device is a registered asset. State is derived from the issue ledger and
// never stored; DeviceStatus is a free-form label.
type Device struct {
	ID                  int64     `json:"id"`
	DeviceID            string    `json:"deviceId"`
	IMEI                string    `json:"imei"`
	Model               string    `json:"model"`
	DeviceType          string    `json:"deviceType"`
	DeviceStatus        string    `json:"deviceStatus"`
	DeviceLocation      string    `json:"deviceLocation"`
	Telco               string    `json:"telco"`
	TelcoContractNumber string    `json:"telcoContractNumber"`
	Phone               string    `json:"phone"`
	ContractStart       string    `json:"contractStart"`
	ContractEnd         string    `json:"contractEnd"`
	MDM                 string    `json:"mdm"`
	MDMExpiry           string    `json:"mdmExpiry"`
	State               string    `json:"state"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Input carries the editable device fields. Dates use YYYY-MM-DD.
type Input struct {
	DeviceID            string `json:"deviceId" validate:"required,max=64"`
	IMEI                string `json:"imei" validate:"omitempty,max=32"`
	Model               string `json:"model" validate:"omitempty,max=120"`
	DeviceType          string `json:"deviceType" validate:"omitempty,max=64"`
	DeviceStatus        string `json:"deviceStatus" validate:"omitempty,max=64"`
	DeviceLocation      string `json:"deviceLocation" validate:"omitempty,max=120"`
	Telco               string `json:"telco" validate:"omitempty,max=64"`
	TelcoContractNumber string `json:"telcoContractNumber" validate:"omitempty,max=64"`
	Phone               string `json:"phone" validate:"omitempty,max=32"`
	ContractStart       string `json:"contractStart" validate:"omitempty,datetime=2006-01-02"`
	ContractEnd         string `json:"contractEnd" validate:"omitempty,datetime=2006-01-02"`
	MDM                 string `json:"mdm" validate:"omitempty,max=64"`
	MDMExpiry           string `json:"mdmExpiry" validate:"omitempty,datetime=2006-01-02"`
}

// Normalize trims every field.
func (in Input) Normalize() Input {
	for _, f := range []*string{
		&in.DeviceID, &in.IMEI, &in.Model, &in.DeviceType, &in.DeviceStatus,
		&in.DeviceLocation, &in.Telco, &in.TelcoContractNumber, &in.Phone,
		&in.ContractStart, &in.ContractEnd, &in.MDM, &in.MDMExpiry,
	} {
		*f = strings.TrimSpace(*f)
	}
	return in
}

// Filters narrows device listings.
type Filters struct {
	Location string
	Type     string
	State    string
	Search   string
}
