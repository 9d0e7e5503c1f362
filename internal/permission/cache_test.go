package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/yourorg/labtrack/internal/domain"
)

type fakeLoader struct {
	list  *domain.PermissionList
	err   error
	calls int
}

func (f *fakeLoader) MyPermissions(ctx context.Context) (*domain.PermissionList, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func TestOptimisticBeforeFirstLoad(t *testing.T) {
	c := NewCache(&fakeLoader{}, nil)

	if !c.Allowed("Projects") {
		t.Fatalf("expected allow before first load")
	}
	if !c.Allowed("Warehouse", ActionDelete) {
		t.Fatalf("expected allow for any action before first load")
	}
	if c.Loaded() {
		t.Fatalf("expected cache to report not loaded")
	}
}

func TestLoadedSemantics(t *testing.T) {
	loader := &fakeLoader{list: &domain.PermissionList{
		Permissions: []domain.ModulePermission{
			{Module: "Projects", AllowedActions: []string{"read", "write"}},
			{Module: "Samples", AllowedActions: []string{"read"}},
		},
	}}
	c := NewCache(loader, nil)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !c.Allowed("Projects") {
		t.Fatalf("expected default read allow on Projects")
	}
	if !c.Allowed("Projects", ActionRead, ActionWrite) {
		t.Fatalf("expected read+write allow on Projects")
	}
	if c.Allowed("Projects", ActionDelete) {
		t.Fatalf("expected delete deny on Projects")
	}
	if c.Allowed("Samples", ActionRead, ActionUpdate) {
		t.Fatalf("expected deny when any requested action is missing")
	}
	if c.Allowed("Billing") {
		t.Fatalf("expected deny for module absent from the snapshot")
	}
	if !c.Allowed("") {
		t.Fatalf("expected allow for ungated module")
	}
}

func TestSystemRoleAllowsEverything(t *testing.T) {
	loader := &fakeLoader{list: &domain.PermissionList{HasSystemRole: true}}
	c := NewCache(loader, nil)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !c.Allowed("Anything", ActionRead, ActionWrite, ActionUpdate, ActionDelete) {
		t.Fatalf("expected system role to allow all actions on all modules")
	}
}

func TestLoadFailureStaysOptimistic(t *testing.T) {
	loader := &fakeLoader{err: errors.New("backend down")}
	c := NewCache(loader, nil)
	if err := c.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}

	if c.Loaded() {
		t.Fatalf("expected cache to stay unloaded after failure")
	}
	if !c.Allowed("Projects", ActionDelete) {
		t.Fatalf("expected optimistic allow after failed load")
	}
}

func TestClearReturnsToOptimistic(t *testing.T) {
	loader := &fakeLoader{list: &domain.PermissionList{
		Permissions: []domain.ModulePermission{{Module: "Projects", AllowedActions: []string{"read"}}},
	}}
	c := NewCache(loader, nil)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Allowed("Warehouse") {
		t.Fatalf("expected deny before clear")
	}

	c.Clear()
	if !c.Allowed("Warehouse") {
		t.Fatalf("expected optimistic allow after clear")
	}
}
