package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	RespondErrorWithDetails(c, status, code, err, nil)
}

// RespondErrorWithDetails writes the error envelope with extra top-level fields beside "error".
func RespondErrorWithDetails(c *gin.Context, status int, code string, err error, details map[string]any) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if len(details) == 0 {
		c.JSON(status, ErrorEnvelope{
			Error: APIError{
				Message: msg,
				Code:    code,
			},
		})
		return
	}
	body := make(gin.H, len(details)+1)
	for k, v := range details {
		body[k] = v
	}
	body["error"] = APIError{Message: msg, Code: code}
	c.JSON(status, body)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
