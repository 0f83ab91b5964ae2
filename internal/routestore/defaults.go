package routestore

import (
	"time"

	"github.com/nao1215/apigateway/internal/route"
)

// DefaultRoutes は設定ファイルが指定されていない場合に使う組み込みのルート。
func DefaultRoutes() []route.ServiceRoute {
	return []route.ServiceRoute{
		{
			PathPrefix:   "/api/aireview",
			Target:       "http://backend-aireview:3000",
			RequiresAuth: false,
			Timeout:      10 * time.Second,
			ChangeOrigin: true,
			// 例: /api/aireview/webhook/github -> /webhook/github
			PathRewrite: mustRewrite("^/api/aireview", ""),
		},
		{
			PathPrefix:   "/api/account",
			Target:       "http://account-backend-container:7001",
			RequiresAuth: false,
			Timeout:      30 * time.Second,
			ChangeOrigin: true,
			PathRewrite:  mustRewrite("^/api/account", ""),
		},
	}
}

// mustRewrite は単一規則の書き換え設定を生成する。正規表現が不正な場合はパニックする。
func mustRewrite(pattern, replacement string) *route.PathRewrite {
	rule, err := route.NewRewriteRule(pattern, replacement)
	if err != nil {
		panic(err)
	}
	return &route.PathRewrite{Rules: []route.RewriteRule{rule}}
}
