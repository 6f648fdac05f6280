package api

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
)

// contextKey is where the JWT middleware stores the parsed token.
const contextKey = "user"

type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

// Login issues a bearer token --> /auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	login := loginRequest{}
	if err := c.Bind(&login); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	if login.Email == "" || login.Password == "" {
		return badRequest(c, "email and password are required")
	}

	token, err := h.authService.Login(c.Request().Context(), login.Email, login.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, loginResponse{AccessToken: token, TokenType: "Bearer"})
}

// actor returns the caller described by the validated token.
func actor(c echo.Context) (service.Actor, error) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok {
		return service.Actor{}, echo.ErrUnauthorized
	}
	claims, ok := token.Claims.(*service.JwtCustomClaims)
	if !ok || claims.UserID == 0 {
		return service.Actor{}, echo.ErrUnauthorized
	}
	return claims.Actor(), nil
}
