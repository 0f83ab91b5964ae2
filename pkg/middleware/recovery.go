package middleware

import (
	"fmt"
	"log"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/apigateway/pkg/apierror"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時はスタックトレースをログに出力し、code 500 のエラーレスポンスを返す。
// 1リクエストの障害でプロセスが停止することはない。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[PANIC] %s %s: %v\n%s", c.Request.Method, c.Request.URL.Path, r, debug.Stack())
				if c.Writer.Written() {
					c.Abort()
					return
				}
				apierror.Respond(c, apierror.Internal("Internal server error", fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
