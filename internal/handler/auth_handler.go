package handler

import (
	"context"
	"net/http"
	"storefront-service/internal/middleware"
	"storefront-service/internal/model"
	"storefront-service/internal/service"
	"storefront-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AccountService is the account surface the auth handler needs
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Profile(ctx context.Context, p model.Principal) (*model.User, error)
	UpdateProfile(ctx context.Context, p model.Principal, in service.ProfileInput) (*model.User, error)
}

type AuthHandler struct {
	accounts AccountService
}

func NewAuthHandler(accounts AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromContext(c)

	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse registration request", zap.Error(err))
		return badRequest(c, "invalid request")
	}

	user, err := h.accounts.Register(c.Request().Context(), req)
	if err != nil {
		log.Warn("Registration rejected", zap.String("username", req.Username), zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse login request", zap.Error(err))
		return badRequest(c, "invalid request")
	}

	res, err := h.accounts.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		log.Warn("Login failed", zap.String("username", req.Username), zap.Error(err))
		return respondError(c, err)
	}

	log.Info("User logged in", zap.Uint("user_id", res.User.ID), zap.Bool("is_admin", res.User.IsAdmin))
	return c.JSON(http.StatusOK, res)
}

func (h *AuthHandler) GetProfile(c echo.Context) error {
	p, _ := middleware.PrincipalFromContext(c)
	user, err := h.accounts.Profile(c.Request().Context(), p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	p, _ := middleware.PrincipalFromContext(c)

	var req service.ProfileInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	user, err := h.accounts.UpdateProfile(c.Request().Context(), p, req)
	if err != nil {
		return respondError(c, err)
	}
	logger.FromContext(c).Info("Profile updated", zap.Bool("password_changed", req.NewPassword != ""))
	return c.JSON(http.StatusOK, user)
}
