package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Timestamp     time.Time          `json:"timestamp"`
	Status        int                `json:"status"`
	Error         string             `json:"error"`
	Message       string             `json:"message"`
	Path          string             `json:"path"`
	CurrentStatus entity.OrderStatus `json:"currentStatus,omitempty"`
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     code,
		Message:   message,
		Path:      c.Request().URL.Path,
	})
}

func badRequest(c echo.Context, message string) error {
	return errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

// respondError maps a service error to its status and error code.
func respondError(c echo.Context, err error) error {
	var (
		verr     *service.ValidationError
		nf       *service.NotFoundError
		conflict *service.ConflictError
	)

	switch {
	case errors.As(err, &verr):
		return badRequest(c, verr.Error())

	case errors.As(err, &nf):
		code := "NOT_FOUND"
		switch nf.Resource {
		case "order":
			code = "ORDER_NOT_FOUND"
		case "product":
			code = "PRODUCT_NOT_FOUND"
		}
		return errorJSON(c, http.StatusNotFound, code, nf.Error())

	case errors.Is(err, repository.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "NOT_FOUND", err.Error())

	case errors.Is(err, repository.ErrInsufficientStock):
		return errorJSON(c, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error())

	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Timestamp:     time.Now().UTC(),
			Status:        http.StatusConflict,
			Error:         "CONFLICT",
			Message:       conflict.Error(),
			Path:          c.Request().URL.Path,
			CurrentStatus: conflict.Current,
		})

	case errors.Is(err, service.ErrForbidden):
		return errorJSON(c, http.StatusForbidden, "FORBIDDEN", err.Error())

	case errors.Is(err, service.ErrInvalidCredentials):
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	}

	log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Unhandled error")
	return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

var httpErrorCodes = map[int]string{
	http.StatusBadRequest:       "VALIDATION_ERROR",
	http.StatusUnauthorized:     "UNAUTHORIZED",
	http.StatusForbidden:        "FORBIDDEN",
	http.StatusNotFound:         "NOT_FOUND",
	http.StatusMethodNotAllowed: "METHOD_NOT_ALLOWED",
	http.StatusTooManyRequests:  "TOO_MANY_REQUESTS",
}

// HTTPErrorHandler renders errors raised by echo and its middleware (unknown
// routes, missing tokens, panics) in the same shape as handler errors.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		if rerr := respondError(c, err); rerr != nil {
			log.Error().Err(rerr).Msg("Error writing error response")
		}
		return
	}

	code, ok := httpErrorCodes[he.Code]
	if !ok {
		code = "INTERNAL_ERROR"
	}
	message := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		message = m
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = errorJSON(c, he.Code, code, message)
	}
	if err != nil {
		log.Error().Err(err).Msg("Error writing error response")
	}
}
