package devices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/shared"
)

// Service exposes device registry use cases.
type Service struct {
	repo   Repository
	audit  audit.Recorder
	logger *slog.Logger
}

// NewService constructs the registry service.
func NewService(repo Repository, recorder audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: recorder, logger: logger}
}

// List returns devices matching filters.
func (s *Service) List(ctx context.Context, filters Filters) ([]Device, error) {
	filters.Search = strings.TrimSpace(filters.Search)
	filters.State = strings.ToUpper(strings.TrimSpace(filters.State))
	devices, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// Get returns one device by row id.
func (s *Service) Get(ctx context.Context, id int64) (Device, error) {
	return s.repo.Get(ctx, id)
}

// Register adds a device to the registry.
func (s *Service) Register(ctx context.Context, actor shared.Principal, in Input) (Device, error) {
	device, err := s.repo.Create(ctx, in.Normalize())
	if err != nil {
		return Device{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionRegisterDevice, "Device ID "+device.DeviceID))
	return device, nil
}

// Update replaces the editable fields of a device.
func (s *Service) Update(ctx context.Context, actor shared.Principal, id int64, in Input) (Device, error) {
	device, err := s.repo.Update(ctx, id, in.Normalize())
	if err != nil {
		return Device{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionUpdateDevice, "Device ID "+device.DeviceID))
	return device, nil
}

// SetStatus changes the status label. Issuance state is untouched.
func (s *Service) SetStatus(ctx context.Context, actor shared.Principal, id int64, status string) (Device, error) {
	device, err := s.repo.SetStatus(ctx, id, strings.TrimSpace(status))
	if err != nil {
		return Device{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionToggleDeviceStatus,
		fmt.Sprintf("Device %s: %s", device.DeviceID, device.DeviceStatus)))
	return device, nil
}
