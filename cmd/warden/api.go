package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/modstore"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Status  string `json:"status"`
	Daemon  string `json:"daemon"`
	Message string `json:"message,omitempty"`
}

type StatsResponse struct {
	GuildID string `json:"guild_id"`
	Since   string `json:"since"`
	// moderation actions by kind, over the last day
	Actions map[modstore.ActionKind]int64 `json:"actions"`
	// automod violations and distinct offenders today, from the counters
	Violations       int                            `json:"violations"`
	ViolationsByKind map[modstore.ViolationKind]int `json:"violations_by_kind"`
	Offenders        int                            `json:"offenders"`
}

const defaultListLimit = 50

// Read-mostly HTTP API for dashboards and operators. Every route except the health check requires the admin bearer token.
func (s *Server) newAPI(token string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", s.HandleHealthCheck)

	api := e.Group("/api", middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
	}))
	api.GET("/guilds/:guild/users/:user/history", s.HandleUserHistory)
	api.GET("/guilds/:guild/users/:user/warnings", s.HandleUserWarnings)
	api.GET("/guilds/:guild/violations", s.HandleViolations)
	api.GET("/guilds/:guild/staff-logs", s.HandleStaffLogs)
	api.GET("/guilds/:guild/stats", s.HandleStats)
	api.GET("/guilds/:guild/settings", s.HandleGetSettings)
	api.PUT("/guilds/:guild/settings", s.HandleUpdateSettings)
	api.POST("/reload", s.HandleReload)

	return e
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		s.logger.Warn("warden-http-internal-error", "err", err)
		errorMessage = "internal error"
	}
	if c.Response().Committed {
		return
	}
	c.JSON(code, GenericError{Error: http.StatusText(code), Message: errorMessage})
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(503, GenericStatus{Status: "error", Daemon: "warden", Message: "database unavailable"})
	}
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "warden"})
}

func parseLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 500 {
		return 0, fmt.Errorf("limit must be an integer between 1 and 500")
	}
	return n, nil
}

func (s *Server) HandleUserHistory(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.JSON(400, GenericError{Error: "BadRequest", Message: err.Error()})
	}
	acts, err := s.store.GetUserHistory(c.Request().Context(), c.Param("guild"), c.Param("user"), limit)
	if err != nil {
		return err
	}
	return c.JSON(200, acts)
}

func (s *Server) HandleUserWarnings(c echo.Context) error {
	activeOnly := c.QueryParam("all") != "true"
	ws, err := s.store.GetWarnings(c.Request().Context(), c.Param("guild"), c.Param("user"), activeOnly)
	if err != nil {
		return err
	}
	return c.JSON(200, ws)
}

func (s *Server) HandleViolations(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.JSON(400, GenericError{Error: "BadRequest", Message: err.Error()})
	}
	kind := modstore.ViolationKind(c.QueryParam("kind"))
	vs, err := s.store.GetAutomodViolations(c.Request().Context(), c.Param("guild"), c.QueryParam("user"), kind, limit)
	if err != nil {
		return err
	}
	return c.JSON(200, vs)
}

func (s *Server) HandleStaffLogs(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.JSON(400, GenericError{Error: "BadRequest", Message: err.Error()})
	}
	logs, err := s.store.GetStaffLogs(c.Request().Context(), c.Param("guild"), limit)
	if err != nil {
		return err
	}
	return c.JSON(200, logs)
}

func (s *Server) HandleStats(c echo.Context) error {
	ctx := c.Request().Context()
	guildID := c.Param("guild")
	since := time.Now().Add(-24 * time.Hour)

	actions, err := s.store.GetModStats(ctx, guildID, since)
	if err != nil {
		return err
	}
	resp := StatsResponse{
		GuildID:          guildID,
		Since:            since.UTC().Format(time.RFC3339),
		Actions:          actions,
		ViolationsByKind: make(map[modstore.ViolationKind]int, len(modstore.ViolationKinds)),
	}
	// counters are best-effort; a redis outage should not break the stats page
	if n, err := s.engine.Counters.GetCount(ctx, "violation-guild", guildID, countstore.PeriodDay); err != nil {
		s.logger.Warn("failed to read violation counter", "guild", guildID, "err", err)
	} else {
		resp.Violations = n
	}
	for _, kind := range modstore.ViolationKinds {
		n, err := s.engine.Counters.GetCount(ctx, "violation", engine.ViolationCounterKey(guildID, kind), countstore.PeriodDay)
		if err != nil {
			s.logger.Warn("failed to read violation counter", "guild", guildID, "kind", kind, "err", err)
			break
		}
		resp.ViolationsByKind[kind] = n
	}
	if n, err := s.engine.Counters.GetCountDistinct(ctx, "offenders", guildID, countstore.PeriodDay); err != nil {
		s.logger.Warn("failed to read offenders counter", "guild", guildID, "err", err)
	} else {
		resp.Offenders = n
	}
	return c.JSON(200, resp)
}

func (s *Server) HandleGetSettings(c echo.Context) error {
	gs, err := s.store.GetGuildSettings(c.Request().Context(), c.Param("guild"))
	if errors.Is(err, modstore.ErrNotFound) {
		return c.JSON(404, GenericError{Error: "NotFound", Message: "no settings for guild"})
	} else if err != nil {
		return err
	}
	vals, err := gs.Values()
	if err != nil {
		return err
	}
	return c.JSON(200, vals)
}

// Merges the posted JSON object into the guild's settings.
func (s *Server) HandleUpdateSettings(c echo.Context) error {
	ctx := c.Request().Context()
	guildID := c.Param("guild")

	var vals map[string]any
	if err := c.Bind(&vals); err != nil || len(vals) == 0 {
		return c.JSON(400, GenericError{Error: "BadRequest", Message: "expected a non-empty JSON object"})
	}
	if err := s.store.UpdateGuildSettings(ctx, guildID, vals); err != nil {
		return err
	}
	if err := s.engine.PurgeGuildCaches(ctx, guildID); err != nil {
		s.logger.Warn("failed to purge guild caches", "guild", guildID, "err", err)
	}
	s.logger.Info("guild settings updated", "guild", guildID, "keys", len(vals))

	gs, err := s.store.GetGuildSettings(ctx, guildID)
	if err != nil {
		return err
	}
	out, err := gs.Values()
	if err != nil {
		return err
	}
	return c.JSON(200, out)
}

func (s *Server) HandleReload(c echo.Context) error {
	cfg, err := s.Reload()
	if err != nil {
		return c.JSON(400, GenericError{Error: "ReloadFailed", Message: err.Error()})
	}
	return c.JSON(200, map[string]any{"status": "ok", "problems": cfg.Problems})
}
