package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pztrick/television/internal/adapter/auth"
	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/platform/httperr"
)

// requireStaff resolves the caller the same way the upgrade does and refuses
// anyone who is not staff.
func (s *Server) requireStaff(c echo.Context) error {
	id, err := s.resolver.Resolve(c.Request())
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return httperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return httperr.Internal("identity resolution failed", err)
	}
	if !id.Authenticated {
		return httperr.Unauthorized("authentication required")
	}
	if !id.IsStaff {
		return httperr.Forbidden("staff only")
	}
	return nil
}

// handleChannels lists every registered listener.
func (s *Server) handleChannels(c echo.Context) error {
	if err := s.requireStaff(c); err != nil {
		return err
	}
	entries := s.registry.List()
	if err := c.JSON(http.StatusOK, map[string]any{"count": len(entries), "channels": entries}); err != nil {
		return fmt.Errorf("failed to write channels response: %w", err)
	}
	return nil
}

// handleGroups reports local membership of the canonical groups.
func (s *Server) handleGroups(c echo.Context) error {
	if err := s.requireStaff(c); err != nil {
		return err
	}

	groups := map[domain.Group]int{}
	for _, g := range []domain.Group{domain.GroupChat, domain.GroupUsers, domain.GroupStaff, domain.GroupSuperusers} {
		members, err := s.directory.Members(g)
		if err != nil {
			return httperr.Unavailable("group directory unavailable", err)
		}
		groups[g] = len(members)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"groups": groups, "limits": s.limits.Snapshot()}); err != nil {
		return fmt.Errorf("failed to write groups response: %w", err)
	}
	return nil
}

// handleInstances lists the server instances attached to the channel layer.
func (s *Server) handleInstances(c echo.Context) error {
	if err := s.requireStaff(c); err != nil {
		return err
	}
	if s.instances == nil {
		return httperr.NotFound("channel layer disabled")
	}

	instances, err := s.instances.Active(c.Request().Context())
	if err != nil {
		return httperr.Unavailable("instance registry unavailable", err)
	}
	if err := c.JSON(http.StatusOK, map[string]any{"count": len(instances), "instances": instances}); err != nil {
		return fmt.Errorf("failed to write instances response: %w", err)
	}
	return nil
}
