package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-sitesettings/environment"
	"github.com/gaborage/go-sitesettings/host"
	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/multitenant"
	"github.com/gaborage/go-sitesettings/patcher"
)

// bridgeHandler serves the host runtime's calls into the engine. Each call
// names the URL of the page the host is rendering; the engine resolves it the
// same way it resolves live requests.
type bridgeHandler struct {
	engine   *environment.Engine
	registry *host.Registry
	log      logger.Logger
}

type optionResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type environmentResponse struct {
	ServerIndex int                      `json:"server"`
	TenantID    int                      `json:"tenantId"`
	BaseURL     string                   `json:"baseUrl"`
	Environment *multitenant.Environment `json:"environment,omitempty"`
}

type eventRequest struct {
	URL      string `json:"url" validate:"required,request_url"`
	Kind     string `json:"kind" validate:"required,oneof=multisite_enabled tenant_created"`
	TenantID int    `json:"tenantId" validate:"required_if=Kind tenant_created,omitempty,gt=1"`
}

type eventResponse struct {
	Kind    string `json:"kind"`
	Patched bool   `json:"patched"`
}

func registerBridgeRoutes(g *echo.Group, h *bridgeHandler) {
	g.GET("/environment", h.environment)
	g.GET("/options/:name", h.option)
	g.GET("/tenant-path", h.tenantPath)
	g.POST("/events", h.event)
}

func (h *bridgeHandler) bind(c echo.Context, requestURL string) (context.Context, *multitenant.Resolution, error) {
	if requestURL == "" {
		return nil, nil, NewBadRequestError("url is required")
	}
	ctx, res, err := h.engine.BindURL(c.Request().Context(), requestURL)
	if err != nil {
		return nil, nil, NewMisdirectedRequestError(requestURL)
	}
	return ctx, res, nil
}

func (h *bridgeHandler) environment(c echo.Context) error {
	ctx, res, err := h.bind(c, c.QueryParam("url"))
	if err != nil {
		return err
	}

	resp := environmentResponse{
		ServerIndex: res.ServerIndex,
		TenantID:    res.TenantID,
		BaseURL:     res.BaseURL,
	}
	if env, ok := multitenant.EnvironmentFrom(ctx); ok {
		resp.Environment = &env
	}
	return formatSuccessResponse(c, http.StatusOK, resp)
}

func (h *bridgeHandler) option(c echo.Context) error {
	name := c.Param("name")
	if name != host.OptionHome && name != host.OptionSiteURL {
		return NewNotFoundError("option " + name)
	}
	ctx, _, err := h.bind(c, c.QueryParam("url"))
	if err != nil {
		return err
	}

	value := h.registry.FilterOption(ctx, name, c.QueryParam("value"))
	return formatSuccessResponse(c, http.StatusOK, optionResponse{Name: name, Value: value})
}

func (h *bridgeHandler) tenantPath(c echo.Context) error {
	ctx, _, err := h.bind(c, c.QueryParam("url"))
	if err != nil {
		return err
	}

	record, ok, err := h.registry.ResolveTenantPath(ctx, c.QueryParam("domain"), c.QueryParam("path"))
	if err != nil {
		logger.FromContext(ctx, h.log).Error().Err(err).Msg("Tenant path lookup failed")
		return NewInternalServerError("tenant lookup failed")
	}
	if !ok {
		// The host keeps its own answer.
		return c.NoContent(http.StatusNoContent)
	}
	return formatSuccessResponse(c, http.StatusOK, record)
}

func (h *bridgeHandler) event(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid event body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, _, err := h.bind(c, req.URL)
	if err != nil {
		return err
	}

	switch patcher.EventKind(req.Kind) {
	case patcher.EventMultisiteEnabled:
		err = h.engine.HandleMultisiteEnabled(ctx)
	default:
		err = h.engine.HandleNewTenant(ctx, req.TenantID)
	}
	if err != nil && !errors.Is(err, patcher.ErrNoOp) {
		return patchAPIError(err)
	}
	return formatSuccessResponse(c, http.StatusOK, eventResponse{Kind: req.Kind, Patched: err == nil})
}

func patchAPIError(err error) error {
	switch {
	case errors.Is(err, patcher.ErrBaseURLConflict):
		return NewConflictError("derived base URL is already declared").WithDetails("error", err.Error())
	case errors.Is(err, patcher.ErrInvalidEvent):
		return NewBadRequestError("invalid event").WithDetails("error", err.Error())
	case errors.Is(err, multitenant.ErrResolutionMiss):
		return NewBaseAPIError("MISDIRECTED_REQUEST", "No declared site matches the request", http.StatusMisdirectedRequest)
	default:
		return NewInternalServerError("site settings could not be patched").WithDetails("error", err.Error())
	}
}
