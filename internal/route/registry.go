package route

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// DefaultTimeout はタイムアウト未設定のサービスに適用する転送タイムアウト。
const DefaultTimeout = 30 * time.Second

var (
	// ErrEmptyPrefix はパスプレフィックスが空または "/" で始まらない場合のエラー。
	ErrEmptyPrefix = errors.New("パスプレフィックスは \"/\" で始まる必要があります")
	// ErrDuplicatePrefix は同一のパスプレフィックスが複数定義されている場合のエラー。
	ErrDuplicatePrefix = errors.New("パスプレフィックスが重複しています")
	// ErrInvalidTarget は転送先URLが不正な場合のエラー。
	ErrInvalidTarget = errors.New("転送先URLが不正です")
)

// ServiceRoute は転送先バックエンドサービス1件の設定。
type ServiceRoute struct {
	// PathPrefix はリクエストパスとの照合に使うプレフィックス（例: "/api/aireview"）。
	PathPrefix string
	// Target は転送先のベースURL（scheme://host:port）。
	Target string
	// RequiresAuth が true の場合、Bearerトークンによる認証を要求する。
	RequiresAuth bool
	// Timeout は転送リクエストのタイムアウト。0 の場合は DefaultTimeout。
	Timeout time.Duration
	// ChangeOrigin が true の場合、Hostヘッダーを転送先のホストに置き換える。
	ChangeOrigin bool
	// PathRewrite は転送前のパス書き換え設定。nil の場合は書き換えない。
	PathRewrite *PathRewrite
}

// Registry はプレフィックス長の降順に並べたルーティングテーブル。
// 構築後は読み取り専用のため、並行アクセスにロックは不要。
type Registry struct {
	routes []ServiceRoute
}

// NewRegistry はサービス設定を検証し、プレフィックス長の降順に並べたテーブルを構築する。
// 同じ長さのプレフィックスは宣言順を保つ。
func NewRegistry(routes []ServiceRoute) (*Registry, error) {
	seen := make(map[string]struct{}, len(routes))
	sorted := make([]ServiceRoute, 0, len(routes))

	for i, r := range routes {
		if r.PathPrefix == "" || !strings.HasPrefix(r.PathPrefix, "/") {
			return nil, fmt.Errorf("ルート#%d (%q): %w", i, r.PathPrefix, ErrEmptyPrefix)
		}
		if _, dup := seen[r.PathPrefix]; dup {
			return nil, fmt.Errorf("ルート#%d (%q): %w", i, r.PathPrefix, ErrDuplicatePrefix)
		}
		seen[r.PathPrefix] = struct{}{}

		if err := validateTarget(r.Target); err != nil {
			return nil, fmt.Errorf("ルート#%d (%q): %w", i, r.PathPrefix, err)
		}
		if r.Timeout <= 0 {
			r.Timeout = DefaultTimeout
		}
		sorted = append(sorted, r)
	}

	slices.SortStableFunc(sorted, func(a, b ServiceRoute) int {
		return len(b.PathPrefix) - len(a.PathPrefix)
	})

	return &Registry{routes: sorted}, nil
}

// validateTarget は転送先URLが scheme と host を持つ絶対URLであることを検証する。
func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTarget, target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q: schemeはhttpまたはhttpsのみ対応", ErrInvalidTarget, target)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q: hostがありません", ErrInvalidTarget, target)
	}
	return nil
}

// Find はリクエストパスに一致するサービスを返す。
// テーブルは長い順に並んでいるため、最初に一致したものが最も具体的なルートになる。
// path にはクエリ文字列を含めないこと。
func (r *Registry) Find(path string) (ServiceRoute, bool) {
	for _, route := range r.routes {
		if MatchesPrefix(path, route.PathPrefix) {
			return route, true
		}
	}
	return ServiceRoute{}, false
}

// Routes はテーブルの内容を照合順で返す。返り値を変更してもテーブルには影響しない。
func (r *Registry) Routes() []ServiceRoute {
	return slices.Clone(r.routes)
}

// Len は登録されているサービス数を返す。
func (r *Registry) Len() int {
	return len(r.routes)
}

// MatchesPrefix はパスがプレフィックスにセグメント境界で一致するかを判定する。
// "/api/aireview" は "/api/aireview" と "/api/aireview/x" に一致し、
// "/api/aireviews" には一致しない。
func MatchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	return path[len(prefix)] == '/'
}
