package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrFetch wraps failures to read role permissions from the authoritative store.
var ErrFetch = errors.New("rbac: fetch role permissions")

// Fallback selects the behaviour when role permissions cannot be fetched.
type Fallback string

const (
	// FallbackClosed denies every permission and reports the failure to the caller.
	FallbackClosed Fallback = "closed"
	// FallbackOpen answers from the built-in defaults and logs a warning.
	FallbackOpen Fallback = "open"
)

// ParseFallback converts a configuration value into a Fallback.
func ParseFallback(raw string) (Fallback, error) {
	switch f := Fallback(strings.ToLower(strings.TrimSpace(raw))); f {
	case FallbackClosed, FallbackOpen:
		return f, nil
	case "":
		return FallbackClosed, nil
	default:
		return "", fmt.Errorf("rbac: unknown permission fallback %q", raw)
	}
}

// Source reads the stored role → permission mapping.
type Source interface {
	LoadRolePermissions(ctx context.Context) (map[string][]string, error)
}

// FetchObserver counts failed reads of the authoritative store.
type FetchObserver interface {
	PermissionFetchFailed()
}

const defaultFetchTimeout = 5 * time.Second

// ResolverConfig groups resolver options.
type ResolverConfig struct {
	Policy    Policy
	Fallback  Fallback
	TTL       time.Duration
	Cache     *Cache
	Hierarchy *Hierarchy
	Defaults  map[string][]Permission
	Logger    *slog.Logger
	Observer  FetchObserver

	// FetchTimeout bounds one shared load of the store; defaults to five seconds.
	FetchTimeout time.Duration
}

// Resolver maps roles to effective permission sets. It keeps one in-process
// snapshot, revalidated against the shared cache version and expired after TTL.
type Resolver struct {
	source    Source
	cache     *Cache
	hierarchy *Hierarchy
	defaults  map[string][]Permission
	policy    Policy
	fallback  Fallback
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	observer  FetchObserver
	now       func() time.Time

	group    singleflight.Group
	mu       sync.RWMutex
	current  *Snapshot
	loadedAt time.Time
	gen      uint64
}

// NewResolver constructs a Resolver over source.
func NewResolver(source Source, cfg ResolverConfig) *Resolver {
	if cfg.Policy == "" {
		cfg.Policy = PolicyImplied
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackClosed
	}
	if cfg.Hierarchy == nil {
		cfg.Hierarchy = DefaultHierarchy()
	}
	if cfg.Defaults == nil {
		cfg.Defaults = DefaultRolePermissions()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Resolver{
		source:    source,
		cache:     cfg.Cache,
		hierarchy: cfg.Hierarchy,
		defaults:  cfg.Defaults,
		policy:    cfg.Policy,
		fallback:  cfg.Fallback,
		ttl:       cfg.TTL,
		timeout:   cfg.FetchTimeout,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		now:       time.Now,
	}
}

// Policy returns the active hierarchy policy.
func (r *Resolver) Policy() Policy { return r.policy }

// Hierarchy returns the permission hierarchy.
func (r *Resolver) Hierarchy() *Hierarchy { return r.hierarchy }

// Fetch returns the merged snapshot without applying the fallback.
func (r *Resolver) Fetch(ctx context.Context) (Snapshot, error) {
	version, err := r.cache.Version(ctx)
	if err != nil {
		r.logger.Warn("rbac cache version", slog.Any("error", err))
		version = 0
	}
	snap, gen, ok := r.fresh(version)
	if ok {
		return snap, nil
	}
	key := fmt.Sprintf("snapshot:%d:%d", version, gen)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// Waiters share this load, so it must outlive the caller that started it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		stored, err := r.loadStored(loadCtx, version)
		if err != nil {
			return nil, err
		}
		snap := MergeSnapshot(r.hierarchy, r.defaults, stored)
		snap.Version = version
		r.mu.Lock()
		if r.gen == gen {
			r.current = &snap
			r.loadedAt = r.now()
		}
		r.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Load returns the merged snapshot, applying the configured fallback when the
// store cannot be read. Under FallbackClosed the error is returned with an empty
// snapshot; under FallbackOpen the defaults are returned and the error is logged.
func (r *Resolver) Load(ctx context.Context) (Snapshot, error) {
	snap, err := r.Fetch(ctx)
	if err == nil {
		return snap, nil
	}
	if r.observer != nil {
		r.observer.PermissionFetchFailed()
	}
	if r.fallback == FallbackOpen {
		r.logger.Warn("rbac serving default permissions", slog.Any("error", err))
		return MergeSnapshot(r.hierarchy, r.defaults, nil), nil
	}
	return Snapshot{Roles: map[string][]Permission{}}, err
}

// Permissions resolves the effective permission set of role.
func (r *Resolver) Permissions(ctx context.Context, role string) (Set, error) {
	snap, err := r.Load(ctx)
	if err != nil {
		return Set{}, err
	}
	return r.Effective(snap, role), nil
}

// Effective expands role's explicit grants in snap under the active policy.
func (r *Resolver) Effective(snap Snapshot, role string) Set {
	return r.policy.Expand(r.hierarchy, snap.Roles[role])
}

// Allowed reports whether role holds perm.
func (r *Resolver) Allowed(ctx context.Context, role string, perm Permission) (bool, error) {
	set, err := r.Permissions(ctx, role)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// Invalidate drops the in-process snapshot and bumps the shared cache version.
func (r *Resolver) Invalidate(ctx context.Context) error {
	r.mu.Lock()
	r.current = nil
	r.gen++
	r.mu.Unlock()
	if err := r.cache.Bump(ctx); err != nil {
		return fmt.Errorf("rbac: bump cache: %w", err)
	}
	return nil
}

func (r *Resolver) fresh(version int64) (Snapshot, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil || r.current.Version != version {
		return Snapshot{}, r.gen, false
	}
	if r.ttl > 0 && r.now().Sub(r.loadedAt) > r.ttl {
		return Snapshot{}, r.gen, false
	}
	return *r.current, r.gen, true
}

func (r *Resolver) loadStored(ctx context.Context, version int64) (map[string][]string, error) {
	if r.cache != nil {
		stored, ok, err := r.cache.Get(ctx, version)
		if err != nil {
			r.logger.Warn("rbac cache read", slog.Any("error", err))
		} else if ok {
			return stored, nil
		}
	}
	stored, err := r.source.LoadRolePermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, version, stored); err != nil {
			r.logger.Warn("rbac cache write", slog.Any("error", err))
		}
	}
	return stored, nil
}
