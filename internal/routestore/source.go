package routestore

import (
	"context"
	"fmt"

	"github.com/nao1215/apigateway/internal/route"
)

// Source はルート設定の読み込み元。DSN が File より優先される。
// どちらも空の場合は DefaultRoutes を使う。
type Source struct {
	// File はYAMLルート設定ファイルのパス。
	File string
	// DSN はSQLiteルートストアの接続文字列。
	DSN string
}

// String は読み込み元を表す文字列を返す。ログ出力用。
func (s Source) String() string {
	switch {
	case s.DSN != "":
		return "sqlite:" + s.DSN
	case s.File != "":
		return "file:" + s.File
	default:
		return "builtin"
	}
}

// Load は読み込み元からルートを読み込む。
func (s Source) Load(ctx context.Context) ([]route.ServiceRoute, error) {
	switch {
	case s.DSN != "":
		store, err := Open(ctx, s.DSN)
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()

		routes, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("ルートストアの読み込みに失敗: %w", err)
		}
		return routes, nil
	case s.File != "":
		return LoadFile(s.File)
	default:
		return DefaultRoutes(), nil
	}
}
