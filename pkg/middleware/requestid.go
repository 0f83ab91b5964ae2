package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエストを追跡するためのHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// RequestID はリクエストIDを付与するGinミドルウェアを返す。
// クライアントが指定したIDはそのまま使い、無い場合はUUIDを生成する。
// IDはレスポンスヘッダーに設定し、リクエストヘッダー経由でバックエンドにも伝播する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
			c.Request.Header.Set(HeaderRequestID, id)
		}
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
