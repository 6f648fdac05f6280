package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/metrics"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	BasePath       string
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         zerolog.Logger
}

type Handlers struct {
	Auth      *AuthHandler
	Products  *ProductHandler
	Inventory *InventoryHandler
	Orders    *OrderHandler
	Payments  *PaymentHandler
}

// NewRouter builds the echo instance with middleware and every route.
func NewRouter(cfg RouterConfig, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimitRPS),
				Burst:     cfg.RateLimitBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return errorJSON(context, http.StatusForbidden, "FORBIDDEN", "unable to identify client")
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return errorJSON(context, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "rate limit exceeded")
		},
	}

	base := cfg.BasePath
	public := map[string]bool{
		base + "/auth/login": true,
		base + "/health":     true,
		base + "/metrics":    true,
	}

	jwtConfig := echojwt.Config{
		SigningKey:    []byte(cfg.JWTSecret),
		SigningMethod: "HS256",
		ContextKey:    contextKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return new(service.JwtCustomClaims)
		},
		Skipper: func(c echo.Context) bool {
			return public[c.Path()]
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
		},
	}

	logger := cfg.Logger

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))
	e.Use(metrics.Middleware())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))
	e.Use(echojwt.WithConfig(jwtConfig))

	g := e.Group(base)

	// Routes
	g.POST("/auth/login", h.Auth.Login)

	g.GET("/products", h.Products.ListProducts)
	g.GET("/products/:id", h.Products.GetProduct)
	g.POST("/products", h.Products.CreateProduct)

	g.POST("/inventory/batch", h.Inventory.BatchStock)
	g.POST("/inventory/add", h.Inventory.AddStock)
	g.POST("/inventory/set", h.Inventory.SetStock)

	g.POST("/orders", h.Orders.CreateOrder)
	g.GET("/orders", h.Orders.ListOrders)
	g.GET("/orders/my-orders", h.Orders.MyOrders)
	g.GET("/orders/user/:userId", h.Orders.UserOrders)
	g.GET("/orders/:id", h.Orders.GetOrder)
	g.POST("/orders/:id/cancel", h.Orders.CancelOrder)
	g.POST("/orders/:id/deliver", h.Orders.DeliverOrder)

	g.POST("/payments/initiate", h.Payments.Initiate)
	g.GET("/payments/order/:orderId", h.Payments.ListForOrder)

	g.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	g.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "order-saga-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	return e
}
