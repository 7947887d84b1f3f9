package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"currencyapi/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Response every error body carries a detail
type Response struct {
	Detail interface{} `json:"detail"`
}

// FieldError one entry of a 422 detail list
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// NotFound 404 "<Entity> not found"
func NotFound(c *gin.Context, entity string) {
	c.JSON(http.StatusNotFound, Response{Detail: entity + " not found"})
}

// BadRequest 400 with the error text, used for write failures
func BadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Detail: err.Error()})
}

// ValidationError 422 with one entry per offending field.
// source is the request part the error came from: body, query or path.
func ValidationError(c *gin.Context, source string, err error) {
	c.JSON(http.StatusUnprocessableEntity, Response{Detail: ValidationDetails(source, err)})
}

// Unauthorized 401
func Unauthorized(c *gin.Context, msg string) {
	if msg == "" {
		msg = "Not authenticated"
	}
	c.JSON(http.StatusUnauthorized, Response{Detail: msg})
}

// RateLimitError 429
func RateLimitError(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, Response{Detail: "Too many requests"})
}

// ServerError 500
func ServerError(c *gin.Context, msg string) {
	if msg == "" {
		msg = "Internal server error"
	}
	c.JSON(http.StatusInternalServerError, Response{Detail: msg})
}

// AbortWithError writes a detail body and stops the chain
func AbortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Detail: msg})
}

// ValidationDetails flattens binding, decoding and filter errors
func ValidationDetails(source string, err error) []FieldError {
	var (
		verrs   validator.ValidationErrors
		typeErr *json.UnmarshalTypeError
		synErr  *json.SyntaxError
		filter  *model.FilterError
	)

	switch {
	case errors.As(err, &verrs):
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{
				Loc:  []string{source, fe.Field()},
				Msg:  validationMessage(fe),
				Type: "value_error." + fe.Tag(),
			})
		}
		return out
	case errors.As(err, &typeErr):
		loc := []string{source}
		if typeErr.Field != "" {
			loc = append(loc, strings.Split(typeErr.Field, ".")...)
		}
		return []FieldError{{
			Loc:  loc,
			Msg:  fmt.Sprintf("value is not a valid %s", typeErr.Type.String()),
			Type: "type_error." + typeErr.Type.Kind().String(),
		}}
	case errors.As(err, &filter):
		return []FieldError{{
			Loc:  []string{source, filter.Field},
			Msg:  filter.Err.Error(),
			Type: "type_error",
		}}
	case errors.As(err, &synErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return []FieldError{{
			Loc:  []string{source},
			Msg:  "request body is not valid JSON",
			Type: "value_error.jsondecode",
		}}
	default:
		return []FieldError{{
			Loc:  []string{source},
			Msg:  err.Error(),
			Type: "value_error",
		}}
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "charcode":
		return "must be three latin letters"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	default:
		return "failed on the " + fe.Tag() + " rule"
	}
}
