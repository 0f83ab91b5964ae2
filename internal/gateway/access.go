package gateway

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/apigateway/internal/route"
	"github.com/nao1215/apigateway/pkg/apierror"
	"github.com/nao1215/apigateway/pkg/middleware"
)

// contextKeyRoute はアクセス判定で解決したルートを格納するキー。
const contextKeyRoute = "route"

// AccessGate はリクエストを通すかどうかを判定する。
type AccessGate struct {
	registry       *route.Registry
	publicPrefixes []string
	verifier       middleware.TokenVerifier
}

// NewAccessGate は新しいAccessGateを生成する。
func NewAccessGate(registry *route.Registry, publicPrefixes []string, verifier middleware.TokenVerifier) *AccessGate {
	return &AccessGate{
		registry:       registry,
		publicPrefixes: publicPrefixes,
		verifier:       verifier,
	}
}

// Middleware はアクセス判定を行うGinミドルウェアを返す。
// public が true のハンドラには判定を行わない。
//
// 判定は次の順に行い、最初に決まった結果を採用する。
//  1. 公開ハンドラ
//  2. 公開プレフィックス（単純な前方一致）
//  3. ルートが無ければ NotFound
//  4. 認証不要のルート
//  5. Bearerトークンが無ければ Unauthorized("Token not found")
//  6. 検証に失敗すれば Unauthorized("Invalid token")
func (g *AccessGate) Middleware(public bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if public {
			c.Next()
			return
		}
		if err := g.check(c); err != nil {
			apierror.Respond(c, err)
			return
		}
		c.Next()
	}
}

// check は公開ハンドラ以外のリクエストを判定する。
// 照合にはデコード前のパスを使い、転送時の書き換えと同じ表記で判定する。
func (g *AccessGate) check(c *gin.Context) error {
	path := c.Request.URL.EscapedPath()
	if g.isPublicPath(path) {
		return nil
	}

	rt, ok := g.registry.Find(path)
	if !ok {
		return apierror.NotFound("Service not found")
	}
	c.Set(contextKeyRoute, rt)

	if !rt.RequiresAuth {
		return nil
	}

	token, ok := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
	if !ok {
		return apierror.Unauthorized("Token not found")
	}
	id, err := g.verifier.Verify(token)
	if err != nil || id == nil {
		invalid := apierror.Unauthorized("Invalid token")
		invalid.Err = err
		return invalid
	}
	middleware.SetIdentity(c, id)
	return nil
}

// isPublicPath は path がいずれかの公開プレフィックスで始まるかを返す。
// ルートの照合とは異なり、セグメント境界は考慮しない。
func (g *AccessGate) isPublicPath(path string) bool {
	for _, p := range g.publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RouteFromContext はアクセス判定で解決したルートを取得する。
func RouteFromContext(c *gin.Context) (route.ServiceRoute, bool) {
	v, ok := c.Get(contextKeyRoute)
	if !ok {
		return route.ServiceRoute{}, false
	}
	rt, ok := v.(route.ServiceRoute)
	return rt, ok
}
