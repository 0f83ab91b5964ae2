// Package apierror はゲートウェイが返すエラーレスポンスの形式を統一する。
//
// ゲートウェイ自身が生成するエラーはすべてHTTPステータス200で返し、
// 実際のステータスはレスポンスボディの code フィールドで表す。
// クライアントは code を見て成否を判断するため、この規約を変えてはならない。
package apierror

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// TimestampFormat はエラーレスポンスの timestamp に使う ISO-8601 形式（UTC、ミリ秒）。
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Error はゲートウェイのエラー分類を表す。
type Error struct {
	// Code は論理的なHTTPステータスコード。
	Code int
	// Message はクライアントに返すメッセージ。
	Message string
	// Err は原因となったエラー。ログにのみ出力する。
	Err error
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound はリクエストパスに対応するサービスが無いことを表すエラーを返す。
func NotFound(message string) *Error {
	return &Error{Code: http.StatusNotFound, Message: message}
}

// Unauthorized は認証失敗を表すエラーを返す。
func Unauthorized(message string) *Error {
	return &Error{Code: http.StatusUnauthorized, Message: message}
}

// BadGateway はバックエンドへの接続失敗やタイムアウトを表すエラーを返す。
func BadGateway(message string, err error) *Error {
	return &Error{Code: http.StatusBadGateway, Message: message, Err: err}
}

// Internal は予期しない障害を表すエラーを返す。
func Internal(message string, err error) *Error {
	return &Error{Code: http.StatusInternalServerError, Message: message, Err: err}
}

// Envelope はエラーレスポンスのボディ。
type Envelope struct {
	Success   bool   `json:"success"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// NewEnvelope はエラーからレスポンスボディを組み立てる。
// *Error 以外のエラーは500として扱う。
func NewEnvelope(err error, path string, now time.Time) Envelope {
	code := http.StatusInternalServerError
	message := "Internal server error"

	var apiErr *Error
	if errors.As(err, &apiErr) {
		code = apiErr.Code
		message = apiErr.Message
	} else if err != nil && err.Error() != "" {
		message = err.Error()
	}

	return Envelope{
		Success:   false,
		Code:      code,
		Message:   message,
		Timestamp: now.UTC().Format(TimestampFormat),
		Path:      path,
	}
}

// Respond はエラーレスポンスを書き込み、以降のハンドラを中断する。
// HTTPステータスは常に200。
func Respond(c *gin.Context, err error) {
	env := NewEnvelope(err, c.Request.URL.RequestURI(), time.Now())
	log.Printf("[%d] %s - path=%s cause=%v", env.Code, env.Message, env.Path, err)
	c.AbortWithStatusJSON(http.StatusOK, env)
}
