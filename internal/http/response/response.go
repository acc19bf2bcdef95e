package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roomforge-backend/internal/platform/apierr"
)

// ErrorBody is the error envelope of every failed request.
type ErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail,omitempty"`
}

// RespondError renders err. Anything that is not an *apierr.Error becomes a
// retryable 500 with a generic message.
func RespondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	if ae == nil {
		ae = apierr.Internal(errors.New("unknown error"))
	}
	msg := "unknown error"
	if ae.Err != nil {
		msg = ae.Err.Error()
	}
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(ae.Status, ErrorBody{
		Error:     ae.Code,
		Message:   msg,
		Retryable: ae.Retryable,
		Detail:    ae.Detail,
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
