package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
)

var validate = validator.New()

type fieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Code    int          `json:"code"`
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Fields  []fieldError `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// bindAndValidate binds the request, applies `default` tags and runs struct
// validation. The returned error is ready to be written with writeError.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid request: %v", he.Message))
		}
		return clierr.Wrap(clierr.CodeUsage, "invalid request", err)
	}
	if err := defaults.Set(req); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "apply request defaults", err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return err
	}
	return nil
}

func writeError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body := errorBody{
			Code:    int(clierr.CodeUsage),
			Type:    clierr.TypeName(clierr.CodeUsage),
			Message: "request validation failed",
		}
		for _, fe := range verrs {
			body.Fields = append(body.Fields, fieldError{
				Field:   fe.Namespace(),
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Message: fieldMessage(fe),
			})
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: body})
	}

	code := clierr.CodeInternal
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		code = cErr.Code
	}
	return c.JSON(httpStatus(code), errorResponse{Error: errorBody{
		Code:    clierr.ExitCode(err),
		Type:    clierr.TypeName(code),
		Message: message,
	}})
}

func httpStatus(code clierr.Code) int {
	switch code {
	case clierr.CodeUsage:
		return http.StatusBadRequest
	case clierr.CodeAuth:
		return http.StatusUnauthorized
	case clierr.CodeBlocked:
		return http.StatusForbidden
	case clierr.CodeNotFound:
		return http.StatusNotFound
	case clierr.CodeRateLimited:
		return http.StatusTooManyRequests
	case clierr.CodeUnavailable, clierr.CodeStale:
		return http.StatusServiceUnavailable
	case clierr.CodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
