package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/repository"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/response"
)

// 学校 API 相关错误码
const (
	codeUpstreamError   = 30001
	codeUpstreamOffline = 30002
)

// handleUpstreamError 处理学校 API 的错误；不是上游错误时返回 false
func handleUpstreamError(c *gin.Context, err error) bool {
	if errors.Is(err, repository.ErrAPIOffline) {
		response.ServiceUnavailable(c, codeUpstreamOffline, repository.ErrAPIOffline.Error())
		return true
	}
	var apiErr *repository.APIError
	if errors.As(err, &apiErr) {
		response.BadGateway(c, codeUpstreamError, apiErr.UserMessage())
		return true
	}
	return false
}

// invalidRequest 请求参数绑定失败，附带校验细节
func invalidRequest(c *gin.Context, code int, message string, err error) {
	response.ErrorWithDetails(c, http.StatusBadRequest, code, message, err.Error())
}
