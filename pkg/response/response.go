package response

import (
	"errors"
	"net/http"

	appErr "holdem-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Msg     string      `json:"msg"`
	ErrCode string      `json:"errCode,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

func Accepted(c *gin.Context, data interface{}, msg string) {
	JSON(c, http.StatusAccepted, data, msg)
}

func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{}, msg)
}

// Fail maps a service error onto an HTTP status. Game errors keep their
// wire code so clients can branch on it.
func Fail(c *gin.Context, err error) {
	if code := appErr.Code(err); code != "" {
		c.JSON(http.StatusConflict, Body{Code: http.StatusConflict, Data: gin.H{}, Msg: code, ErrCode: code})
		return
	}
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, appErr.ErrTableNotFound), errors.Is(err, appErr.ErrTableStateNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, appErr.ErrTableAccessDenied), errors.Is(err, appErr.ErrNotTableHost):
		Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, appErr.ErrRateLimited):
		Error(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, appErr.ErrInvalidParams):
		Error(c, http.StatusBadRequest, err.Error())
	default:
		Error(c, http.StatusInternalServerError, "internal error")
	}
}

func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}
