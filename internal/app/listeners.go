package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/hub"
	"github.com/pztrick/television/internal/registry"
)

const (
	ChannelPing     domain.Channel = "ping"
	ChannelWhoAmI   domain.Channel = "whoami"
	ChannelStaffLog domain.Channel = "staff.log"
)

var errEmptyMessage = errors.New("staff.log: message is empty")

func (a *App) registerListeners() error {
	listeners := []registry.Listener{
		{Channel: ChannelPing, Handler: a.ping},
		{Channel: ChannelWhoAmI, Handler: a.whoAmI},
		{Channel: ChannelStaffLog, Handler: a.staffLog, Guards: []registry.Guard{registry.RequireStaff}},
	}
	for _, l := range listeners {
		if err := a.Registry.Register(l); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) ping(_ context.Context, _ domain.Session, _ registry.Args) (any, error) {
	return "pong", nil
}

// WhoAmI is the reply of the whoami channel.
type WhoAmI struct {
	ConnectionID  string   `json:"connection_id"`
	Authenticated bool     `json:"authenticated"`
	UserID        string   `json:"user_id,omitempty"`
	Staff         bool     `json:"staff"`
	Superuser     bool     `json:"superuser"`
	Groups        []string `json:"groups"`
}

func (a *App) whoAmI(_ context.Context, s domain.Session, _ registry.Args) (any, error) {
	id := s.Identity()
	groups := id.Groups()
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = string(g)
	}
	return WhoAmI{
		ConnectionID:  s.ID(),
		Authenticated: id.Authenticated,
		UserID:        id.UserID,
		Staff:         id.IsStaff,
		Superuser:     id.IsSuperuser,
		Groups:        names,
	}, nil
}

// staffLog relays a line to every staff connection and records it for superusers.
func (a *App) staffLog(ctx context.Context, s domain.Session, args registry.Args) (any, error) {
	message, err := args.String(0)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errEmptyMessage
	}

	actor := s.Identity()
	author := actor.UserID
	if author == "" {
		author = s.ID()
	}
	if err := hub.StaffLog(ctx, a.broadcaster, author+": "+message); err != nil {
		return nil, fmt.Errorf("staff.log broadcast: %w", err)
	}

	entry, err := a.auditStore.Create(ctx, AuditEntry{
		Actor:     author,
		Action:    string(ChannelStaffLog),
		Detail:    message,
		CreatedAt: a.clock.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("staff.log audit: %w", err)
	}
	if err := a.Audit.Notify(ctx, actor, domain.ActionCreate, entry); err != nil {
		return nil, err
	}
	return true, nil
}
