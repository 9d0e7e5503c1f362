// Package permission answers "may the current user perform action A on
// module M" synchronously, for render-time gating of menus, buttons and
// views.
//
// Checks issued before the first load resolves answer true. That window is a
// deliberate availability tolerance so a user whose permissions have not
// arrived yet does not see an unauthorized flash; it is not a security
// boundary. The backend independently enforces authorization on every call.
package permission

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yourorg/labtrack/internal/domain"
)

// Action is a permission verb on a module
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Loader fetches the permission list for the current identity
type Loader interface {
	MyPermissions(ctx context.Context) (*domain.PermissionList, error)
}

// Cache holds the permission snapshot for one authenticated session. It is
// rebuilt from scratch on every authenticated transition, never patched
// incrementally.
type Cache struct {
	loader Loader
	logger *slog.Logger

	mu         sync.RWMutex
	loaded     bool
	loading    bool
	systemRole bool
	modules    map[string]map[Action]struct{}
}

// NewCache creates an empty, never-loaded cache
func NewCache(loader Loader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{loader: loader, logger: logger}
}

// Load fetches and replaces the whole snapshot. On failure the cache stays
// in its never-loaded (optimistic) state.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	list, err := c.loader.MyPermissions(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.logger.Warn("permission load failed", slog.String("error", err.Error()))
		return err
	}

	modules := make(map[string]map[Action]struct{}, len(list.Permissions))
	for _, grant := range list.Permissions {
		actions := make(map[Action]struct{}, len(grant.AllowedActions))
		for _, a := range grant.AllowedActions {
			actions[Action(a)] = struct{}{}
		}
		modules[grant.Module] = actions
	}
	c.modules = modules
	c.systemRole = list.HasSystemRole
	c.loaded = true

	c.logger.Debug("permissions loaded",
		slog.Int("modules", len(modules)),
		slog.Bool("system_role", list.HasSystemRole),
	)
	return nil
}

// Clear returns the cache to the never-loaded state. Called on logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.loading = false
	c.systemRole = false
	c.modules = nil
}

// Loaded reports whether a snapshot has finished loading for this session
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded && !c.loading
}

// Allowed reports whether every requested action is granted on module.
// An empty module is an ungated surface and always allowed. No actions
// means read. Before the first load resolves the answer is optimistically
// true (see the package comment). A module absent from the snapshot denies
// every action.
func (c *Cache) Allowed(module string, actions ...Action) bool {
	if module == "" {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded || c.loading {
		return true
	}
	if c.systemRole {
		return true
	}

	granted, exists := c.modules[module]
	if !exists {
		return false
	}
	if len(actions) == 0 {
		actions = []Action{ActionRead}
	}
	for _, a := range actions {
		if _, ok := granted[a]; !ok {
			return false
		}
	}
	return true
}
