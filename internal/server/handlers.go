package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"keyword_relay/internal/rules"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"tenants":   len(s.tenants),
	})
}

func (s *Server) handleCacheInfo(c echo.Context) error {
	tables := s.cache.Snapshot()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"cached_tables": len(tables),
		"tables":        tables,
		"timestamp":     time.Now(),
	})
}

func (s *Server) handleReloadTable(c echo.Context) error {
	table := c.Param("table")

	if !s.cache.Invalidate(table) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Table not cached: %s", table),
		})
	}

	return c.JSON(http.StatusOK, ReloadResponse{
		Message:    fmt.Sprintf("Table '%s' marked stale and will reload on next request", table),
		Table:      table,
		ReloadedAt: time.Now(),
	})
}

func (s *Server) handleReloadAll(c echo.Context) error {
	count := s.cache.InvalidateAll()

	return c.JSON(http.StatusOK, ReloadResponse{
		Message:    fmt.Sprintf("All %d tables marked stale and will reload on next request", count),
		ReloadedAt: time.Now(),
	})
}

// handleMatch runs the matcher without sending anything, for checking a
// rule table from the outside.
func (s *Server) handleMatch(c echo.Context) error {
	var req MatchRequest

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	table := req.Table
	if table == "" && req.Tenant != "" {
		t := s.tenantByName(req.Tenant)
		if t == nil {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("Tenant not found: %s", req.Tenant),
			})
		}
		table = t.TableID
	}

	if table == "" || req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "text and one of table or tenant are required",
		})
	}

	if !s.knownTable(table) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Table not configured: %s", table),
		})
	}

	rs := s.cache.Rules(c.Request().Context(), table)
	resp := MatchResponse{Table: table, Rules: len(rs)}
	if rule, ok := rules.FirstMatch(req.Text, rs); ok {
		resp.Matched = true
		resp.Result = rule.Reply
		resp.Priority = rule.Priority
		resp.Row = rule.Row
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) tenantByName(name string) *Tenant {
	for i := range s.tenants {
		if s.tenants[i].Name == name {
			return &s.tenants[i]
		}
	}
	return nil
}

func (s *Server) knownTable(table string) bool {
	for _, t := range s.tenants {
		if t.TableID == table {
			return true
		}
	}
	return false
}
