package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docintell/internal/app"
)

const (
	CodeBadRequest         = 40000
	CodeUnauthorized       = 40100
	CodeNotFound           = 40400
	CodePayloadTooLarge    = 41300
	CodeUnsupportedType    = 41500
	CodeInternalServer     = 50000
	CodeEmbeddingFailure   = 50201
	CodeGenerationFailure  = 50202
	CodeServiceUnavailable = 50300
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Detail string `json:"detail"`
	Code   int    `json:"code"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func Error(c *gin.Context, httpStatus, code int, detail string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{
		Detail: detail,
		Code:   code,
	})
}

// FromError writes the status and code matching a service error. Unknown
// errors are reported as 500 with fallback as the detail so internals are
// not leaked.
func FromError(c *gin.Context, err error, fallback string) {
	httpStatus, code := Classify(err)
	detail := err.Error()
	if httpStatus == http.StatusInternalServerError {
		detail = fallback
		_ = c.Error(err)
	}
	Error(c, httpStatus, code, detail)
}

func Classify(err error) (int, int) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, app.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, app.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, CodeUnsupportedType
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, app.ErrEmbeddingFailure):
		return http.StatusBadGateway, CodeEmbeddingFailure
	case errors.Is(err, app.ErrGenerationFailure):
		return http.StatusBadGateway, CodeGenerationFailure
	default:
		return http.StatusInternalServerError, CodeInternalServer
	}
}
