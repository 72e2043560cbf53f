package issuance

import (
	"time"

	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/rbac"
)

// IssueType distinguishes issues to a person from shared pool issues.
type IssueType string

const (
	IssuePersonal IssueType = "personal"
	IssueShared   IssueType = "shared"
)

// Permission returns the permission needed to create an issue of this type.
func (t IssueType) Permission() rbac.Permission {
	if t == IssueShared {
		return rbac.PermIssuingShared
	}
	return rbac.PermIssuingPersonal
}

var (
	ErrDeviceNotFound   = httpx.NewError(httpx.ErrNotFound, "Device not found")
	ErrAlreadyIssued    = httpx.NewError(httpx.ErrConflict, "Device already issued")
	ErrNotIssued        = httpx.NewError(httpx.ErrValidation, "Device not issued")
	ErrAlreadyScanned   = httpx.NewError(httpx.ErrConflict, "Device already scanned")
	ErrLocationMismatch = httpx.NewError(httpx.ErrForbidden, "Device location is not assigned to you")
)

// DeviceRef is the locked device row an issuance transaction works on.
type DeviceRef struct {
	ID       int64
	DeviceID string
	Location string
}

// Issue records a device handed out. It is open while ReturnedAt is nil.
type Issue struct {
	ID             int64      `json:"id"`
	DeviceRowID    int64      `json:"deviceRowId"`
	DeviceID       string     `json:"deviceId"`
	IssuedTo       string     `json:"issuedTo"`
	IssueType      IssueType  `json:"issueType"`
	Location       string     `json:"location"`
	IssuedByUserID *int64     `json:"issuedByUserId"`
	IssuedAt       time.Time  `json:"issuedAt"`
	ReturnedAt     *time.Time `json:"returnedAt"`
}

// Open reports whether the device has not been returned.
func (i Issue) Open() bool { return i.ReturnedAt == nil }

// Holding records a device scanned into ops holding at its home location.
type Holding struct {
	ID              int64      `json:"id"`
	DeviceRowID     int64      `json:"deviceRowId"`
	DeviceID        string     `json:"deviceId"`
	Location        string     `json:"location"`
	ScannedByUserID *int64     `json:"scannedByUserId"`
	ScannedAt       time.Time  `json:"scannedAt"`
	ReturnedAt      *time.Time `json:"returnedAt"`
}

// IssueInput creates an issue. Personal issues name the recipient.
type IssueInput struct {
	DeviceID  string    `json:"deviceId" validate:"required,max=64"`
	IssuedTo  string    `json:"issuedTo" validate:"required_if=IssueType personal,max=120"`
	IssueType IssueType `json:"issueType" validate:"required,oneof=personal shared"`
	Location  string    `json:"location" validate:"max=120"`
}

// BulkIssueInput issues several devices in one request.
type BulkIssueInput struct {
	Items []IssueInput `json:"items" validate:"required,min=1,max=100,dive"`
}

// BulkResult is the outcome for one item of a bulk issue.
type BulkResult struct {
	DeviceID string `json:"deviceId"`
	Status   int    `json:"status"`
	Issue    *Issue `json:"issue,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ReturnInput closes the open issue of a device.
type ReturnInput struct {
	DeviceID string `json:"deviceId" validate:"required,max=64"`
}

// ScanInput records an ops holding scan.
type ScanInput struct {
	DeviceID string `json:"deviceId" validate:"required,max=64"`
}

// IssueFilters narrows issue listings.
type IssueFilters struct {
	// IncludeReturned lists closed issues too.
	IncludeReturned bool
	DeviceID        string
	Limit           int
	Offset          int
}
