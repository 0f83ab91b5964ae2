package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/apigateway/internal/route"
	"github.com/nao1215/apigateway/pkg/apierror"
	"github.com/nao1215/apigateway/pkg/httpclient"
	"github.com/nao1215/apigateway/pkg/middleware"
)

// 転送時にユーザー情報を渡すヘッダー。
const (
	HeaderUserID   = "X-User-Id"
	HeaderUsername = "X-Username"
)

// userHeaderPrefix で始まるヘッダーはクライアントから受け取っても転送しない。
const userHeaderPrefix = "x-user-"

// requestHeaderExclusions はバックエンドへ転送しないリクエストヘッダー。
// Accept-Encoding はトランスポートに圧縮の交渉を任せるため除外する。
// x-username はゲートウェイだけが設定する。
var requestHeaderExclusions = map[string]struct{}{
	"host":              {},
	"content-length":    {},
	"connection":        {},
	"transfer-encoding": {},
	"accept-encoding":   {},
	"x-username":        {},
}

// responseHeaderExclusions はクライアントへ中継しないレスポンスヘッダー。
var responseHeaderExclusions = map[string]struct{}{
	"content-encoding":  {},
	"content-length":    {},
	"transfer-encoding": {},
	"connection":        {},
}

// Forwarder はリクエストをバックエンドへ転送する。
type Forwarder struct {
	pool    *httpclient.Pool
	metrics *Metrics
}

// NewForwarder は新しいForwarderを生成する。metrics は nil でもよい。
func NewForwarder(pool *httpclient.Pool, metrics *Metrics) *Forwarder {
	return &Forwarder{pool: pool, metrics: metrics}
}

// Forward はリクエストを rt のバックエンドへ転送し、レスポンスを c に書き込む。
// バックエンドが4xxや5xxを返してもエラーにはしない。
// 接続失敗とタイムアウトは apierror.BadGateway を返し、c には何も書き込まない。
func (f *Forwarder) Forward(c *gin.Context, rt route.ServiceRoute, id *middleware.UserIdentity) error {
	in := c.Request

	body, err := requestBody(c)
	if err != nil {
		return apierror.Internal("Internal server error", fmt.Errorf("リクエストボディの読み取りに失敗: %w", err))
	}

	timeout := rt.Timeout
	if timeout <= 0 {
		timeout = route.DefaultTimeout
	}
	// クライアントの切断とは無関係に、タイムアウトまでは転送を続ける。
	ctx, cancel := context.WithTimeout(context.WithoutCancel(in.Context()), timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	target, err := TargetURL(rt, in.URL.EscapedPath(), in.URL.RawQuery)
	if err != nil {
		return apierror.Internal("Internal server error", err)
	}
	outURL := target.String()
	outReq, err := http.NewRequestWithContext(ctx, in.Method, outURL, reader)
	if err != nil {
		return apierror.Internal("Internal server error", fmt.Errorf("転送リクエストの作成に失敗: %w", err))
	}
	outReq.Header = forwardHeaders(in.Header, id)
	if !rt.ChangeOrigin {
		outReq.Host = in.Host
	}

	start := time.Now()
	resp, err := f.pool.Get(rt.Target).Do(outReq)
	if err != nil {
		f.metrics.observe(rt.Target, classify(err), time.Since(start))
		return apierror.BadGateway("Service unavailable", fmt.Errorf("転送に失敗: url=%s: %w", outURL, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		f.metrics.observe(rt.Target, classify(err), time.Since(start))
		return apierror.BadGateway("Service unavailable", fmt.Errorf("レスポンスの読み取りに失敗: url=%s: %w", outURL, err))
	}
	f.metrics.observe(rt.Target, outcomeResponse, time.Since(start))

	relay(c, resp, respBody)
	return nil
}

// TargetURL は転送先URLを組み立てる。
// escapedPath はデコード前のパス。クエリ文字列を除いたパスだけを書き換え、
// クエリは元のまま付け直す。書き換え結果がどうであっても転送先のホストは変わらない。
func TargetURL(rt route.ServiceRoute, escapedPath, rawQuery string) (*url.URL, error) {
	base, err := url.Parse(rt.Target)
	if err != nil {
		return nil, fmt.Errorf("転送先URLが不正: %q: %w", rt.Target, err)
	}

	rewritten := route.Rewrite(escapedPath, rt.PathRewrite)
	if rewritten != "" && !strings.HasPrefix(rewritten, "/") {
		rewritten = "/" + rewritten
	}
	rawPath := strings.TrimSuffix(base.EscapedPath(), "/") + rewritten
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("転送先パスが不正: %q: %w", rawPath, err)
	}

	return &url.URL{
		Scheme:   base.Scheme,
		User:     base.User,
		Host:     base.Host,
		Path:     decoded,
		RawPath:  rawPath,
		RawQuery: rawQuery,
	}, nil
}

// forwardHeaders は転送用のヘッダーを組み立てる。
// id が nil でなければユーザー情報ヘッダーを設定する。空の値は送らない。
func forwardHeaders(in http.Header, id *middleware.UserIdentity) http.Header {
	out := make(http.Header, len(in)+2)
	for name, values := range in {
		lower := strings.ToLower(name)
		if _, skip := requestHeaderExclusions[lower]; skip {
			continue
		}
		if strings.HasPrefix(lower, userHeaderPrefix) {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	if id != nil {
		if id.UserID != "" {
			out.Set(HeaderUserID, id.UserID)
		}
		if id.Username != "" {
			out.Set(HeaderUsername, id.Username)
		}
	}
	return out
}

// requestBody は転送するボディを返す。
// 既に読み込み済みのボディがあればそれを使い、無ければリクエストから読み込む。
// JSONとして解釈できない application/json は元のバイト列のまま転送する。
func requestBody(c *gin.Context) ([]byte, error) {
	if v, ok := c.Get(gin.BodyBytesKey); ok {
		if b, ok := v.([]byte); ok && len(b) > 0 {
			return b, nil
		}
	}
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil, nil
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	if c.ContentType() == gin.MIMEJSON {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.Bytes(), nil
		}
	}
	return raw, nil
}

// relay はバックエンドのレスポンスをステータスとボディを変えずに書き込む。
// Vary はゲートウェイが設定した値に追加し、それ以外のヘッダーはバックエンドの値で置き換える。
func relay(c *gin.Context, resp *http.Response, body []byte) {
	header := c.Writer.Header()
	for name, values := range resp.Header {
		if _, skip := responseHeaderExclusions[strings.ToLower(name)]; skip {
			continue
		}
		if http.CanonicalHeaderKey(name) != "Vary" {
			header.Del(name)
		}
		for _, v := range values {
			header.Add(name, v)
		}
	}
	if _, ok := resp.Header["Content-Type"]; !ok {
		// net/http による Content-Type の推測を抑止する。
		header["Content-Type"] = nil
	}

	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()
	if len(body) > 0 {
		_, _ = c.Writer.Write(body)
	}
}

// classify は転送エラーを分類する。
func classify(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return outcomeTimeout
	}
	return outcomeError
}
