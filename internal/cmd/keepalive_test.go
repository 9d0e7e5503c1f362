package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/yourorg/labtrack/internal/api"
	"github.com/yourorg/labtrack/internal/domain"
	"github.com/yourorg/labtrack/internal/session"
)

type stubAuthAPI struct {
	user *domain.User
}

func (s *stubAuthAPI) Me(ctx context.Context) (*domain.User, error) { return s.user, nil }

func (s *stubAuthAPI) RefreshSession(ctx context.Context) (*domain.User, error) {
	return s.user, nil
}

func (s *stubAuthAPI) Login(ctx context.Context, email, password string) (*domain.User, error) {
	return s.user, nil
}

func (s *stubAuthAPI) Signup(ctx context.Context, req api.SignupRequest) (*domain.User, error) {
	return s.user, nil
}

func (s *stubAuthAPI) AcceptInvite(ctx context.Context, token, name, password string) (*domain.User, error) {
	return s.user, nil
}

func (s *stubAuthAPI) NotifyLogout(ctx context.Context) error { return nil }

func (s *stubAuthAPI) SessionToken() string { return "" }

func TestSessionLostSignalsOnForcedLogout(t *testing.T) {
	m := session.NewManager(&stubAuthAPI{user: &domain.User{ID: "u-1"}}, 0, nil)
	if res := m.Login(context.Background(), "alice@example.com", "pw"); !res.Success {
		t.Fatalf("login failed: %s", res.Message)
	}

	lost := sessionLost(m)
	select {
	case <-lost:
		t.Fatalf("expected no signal while the session is authenticated")
	default:
	}

	m.ForceLogout()
	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatalf("expected the lost channel to close after a forced logout")
	}
}
