package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/conversation"
)

// ErrorResponse is the JSON error body rendered by echo.
type ErrorResponse struct {
	Message string `json:"message"`
}

// PageResponse wraps one page of items.
type PageResponse[T any] struct {
	Items      []T                     `json:"items"`
	Pagination conversation.Pagination `json:"pagination"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func pageRequest(c echo.Context) conversation.PageRequest {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return conversation.PageRequest{Page: page, Limit: limit}.Normalize()
}

// chatError hides internal failures from end users.
func chatError(log *slog.Logger, err error) error {
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	log.Error("chat request failed", slog.Any("error", err))
	return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
}
