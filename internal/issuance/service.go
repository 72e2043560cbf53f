package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
)

// Authorizer checks typed permissions that depend on the request body.
type Authorizer interface {
	Authorize(ctx context.Context, role string, perm rbac.Permission) error
}

// ConflictObserver counts rejected double issues and double scans.
type ConflictObserver interface {
	IssuanceConflict(kind string)
}

const (
	defaultIssueLimit = 200
	maxIssueLimit     = 1000
)

// Service implements the issue/return state machine and ops holding scans.
type Service struct {
	repo     Repository
	authz    Authorizer
	audit    audit.Recorder
	observer ConflictObserver
	logger   *slog.Logger
}

// NewService constructs the issuance service.
func NewService(repo Repository, authz Authorizer, recorder audit.Recorder, observer ConflictObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, audit: recorder, observer: observer, logger: logger}
}

// Issue hands a device out. The device row is locked for the check and the
// insert, so two concurrent issues of one device cannot both succeed.
func (s *Service) Issue(ctx context.Context, actor shared.Principal, in IssueInput) (Issue, error) {
	if err := s.authz.Authorize(ctx, actor.Role, in.IssueType.Permission()); err != nil {
		return Issue{}, err
	}
	deviceID := strings.TrimSpace(in.DeviceID)
	var issued Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		device, err := tx.LockDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		open, err := tx.HasOpenIssue(ctx, device.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrAlreadyIssued
		}
		issued, err = tx.InsertIssue(ctx, Issue{
			DeviceRowID:    device.ID,
			IssuedTo:       strings.TrimSpace(in.IssuedTo),
			IssueType:      in.IssueType,
			Location:       strings.TrimSpace(in.Location),
			IssuedByUserID: actorID(actor),
		})
		if err != nil {
			return err
		}
		issued.DeviceID = device.DeviceID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyIssued) {
			s.conflict("issue")
		}
		return Issue{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionIssueDevice, "Device ID "+issued.DeviceID))
	return issued, nil
}

// BulkIssue issues each item in its own transaction. A failing item does not
// affect the others.
func (s *Service) BulkIssue(ctx context.Context, actor shared.Principal, in BulkIssueInput) ([]BulkResult, error) {
	if err := s.authz.Authorize(ctx, actor.Role, rbac.PermIssuingBulk); err != nil {
		return nil, err
	}
	results := make([]BulkResult, 0, len(in.Items))
	for _, item := range in.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := BulkResult{DeviceID: strings.TrimSpace(item.DeviceID)}
		issued, err := s.Issue(ctx, actor, item)
		switch status := httpx.StatusFor(err); {
		case err == nil:
			result.Status = http.StatusCreated
			result.Issue = &issued
		case status >= 500:
			s.logger.Error("bulk issue item", slog.String("device_id", result.DeviceID), slog.Any("error", err))
			result.Status = status
			result.Error = "internal server error"
		default:
			result.Status = status
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

// Return closes the open issue of a device.
func (s *Service) Return(ctx context.Context, actor shared.Principal, in ReturnInput) (Issue, error) {
	var closed Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		device, err := tx.LockDevice(ctx, strings.TrimSpace(in.DeviceID))
		if err != nil {
			return err
		}
		closed, err = tx.CloseIssue(ctx, device.ID)
		return err
	})
	if err != nil {
		return Issue{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionReturnDevice, "Device ID "+closed.DeviceID))
	return closed, nil
}

// ListIssues lists issues, open ones only unless filters.IncludeReturned.
func (s *Service) ListIssues(ctx context.Context, filters IssueFilters) ([]Issue, error) {
	w := shared.NewWindow(filters.Limit, filters.Offset, defaultIssueLimit, maxIssueLimit)
	filters.Limit, filters.Offset = w.Limit, w.Offset
	filters.DeviceID = strings.TrimSpace(filters.DeviceID)
	issues, err := s.repo.ListIssues(ctx, filters)
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []Issue{}
	}
	return issues, nil
}

// Scan records that a device is physically present at its home location. The
// actor must be assigned to that location and a device can be held once.
func (s *Service) Scan(ctx context.Context, actor shared.Principal, in ScanInput) (Holding, error) {
	var held Holding
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		device, err := tx.LockDevice(ctx, strings.TrimSpace(in.DeviceID))
		if err != nil {
			return err
		}
		if !actor.HasLocation(device.Location) {
			return ErrLocationMismatch
		}
		open, err := tx.HasOpenHolding(ctx, device.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrAlreadyScanned
		}
		held, err = tx.InsertHolding(ctx, Holding{
			DeviceRowID:     device.ID,
			Location:        device.Location,
			ScannedByUserID: actorID(actor),
		})
		if err != nil {
			return err
		}
		held.DeviceID = device.DeviceID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyScanned) {
			s.conflict("scan")
		}
		return Holding{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(actor, audit.ActionOpsScan,
		fmt.Sprintf("Device ID %s at %s", held.DeviceID, held.Location)))
	return held, nil
}

// ListHoldings lists open ops holdings, optionally for one location.
func (s *Service) ListHoldings(ctx context.Context, location string) ([]Holding, error) {
	holdings, err := s.repo.ListHoldings(ctx, strings.TrimSpace(location))
	if err != nil {
		return nil, err
	}
	if holdings == nil {
		holdings = []Holding{}
	}
	return holdings, nil
}

func (s *Service) conflict(kind string) {
	if s.observer != nil {
		s.observer.IssuanceConflict(kind)
	}
}

func actorID(actor shared.Principal) *int64 {
	if actor.UserID <= 0 {
		return nil
	}
	id := actor.UserID
	return &id
}
