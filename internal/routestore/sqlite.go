package routestore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/nao1215/apigateway/internal/route"
	"github.com/nao1215/apigateway/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.up.sql
var migrationFS embed.FS

// Store はSQLiteに保存したルート設定。
type Store struct {
	db *sql.DB
}

// Open はSQLiteデータベースを開き、マイグレーションを適用する。
// dsn は modernc.org/sqlite の形式（例: "file:/data/routes.db?_pragma=busy_timeout(5000)"）。
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// 起動時に一度読むだけなので1接続で足りる。インメモリDBもこれで共有される
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New は接続済みのデータベースからStoreを生成し、マイグレーションを適用する。
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := migration.Run(ctx, db, migrationFS, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Load は保存されているルートを登録順に読み込む。置換規則は position 順。
func (s *Store) Load(ctx context.Context) ([]route.ServiceRoute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path_prefix, target, requires_auth, timeout_ms, change_origin
		FROM service_routes
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ルートの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		ids    []int64
		routes []route.ServiceRoute
	)
	for rows.Next() {
		var (
			id           int64
			r            route.ServiceRoute
			timeoutMS    int64
			requiresAuth bool
			changeOrigin bool
		)
		if err := rows.Scan(&id, &r.PathPrefix, &r.Target, &requiresAuth, &timeoutMS, &changeOrigin); err != nil {
			return nil, fmt.Errorf("ルートの読み取りに失敗: %w", err)
		}
		r.RequiresAuth = requiresAuth
		r.ChangeOrigin = changeOrigin
		r.Timeout = time.Duration(timeoutMS) * time.Millisecond
		ids = append(ids, id)
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ルートの読み取りに失敗: %w", err)
	}

	rules, err := s.loadRules(ctx)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		rw, err := buildRewrite(rules[id])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", routes[i].PathPrefix, err)
		}
		routes[i].PathRewrite = rw
	}
	return routes, nil
}

// loadRules は置換規則をルートIDごとに position 順で返す。
func (s *Store) loadRules(ctx context.Context) (map[int64][]FileRewrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route_id, pattern, replacement
		FROM path_rewrite_rules
		ORDER BY route_id, position`)
	if err != nil {
		return nil, fmt.Errorf("パス書き換え規則の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := make(map[int64][]FileRewrite)
	for rows.Next() {
		var (
			routeID int64
			rule    FileRewrite
		)
		if err := rows.Scan(&routeID, &rule.Pattern, &rule.Replacement); err != nil {
			return nil, fmt.Errorf("パス書き換え規則の読み取りに失敗: %w", err)
		}
		rules[routeID] = append(rules[routeID], rule)
	}
	return rules, rows.Err()
}

// Import は保存されているルートをすべて置き換える。1トランザクションで実行する。
func (s *Store) Import(ctx context.Context, routes []route.ServiceRoute) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM path_rewrite_rules"); err != nil {
		return fmt.Errorf("既存の書き換え規則の削除に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM service_routes"); err != nil {
		return fmt.Errorf("既存のルートの削除に失敗: %w", err)
	}

	for _, r := range routes {
		rules, err := rewriteRules(r)
		if err != nil {
			return err
		}
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = route.DefaultTimeout
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO service_routes (path_prefix, target, requires_auth, timeout_ms, change_origin)
			VALUES (?, ?, ?, ?, ?)`,
			r.PathPrefix, r.Target, r.RequiresAuth, timeout.Milliseconds(), r.ChangeOrigin)
		if err != nil {
			return fmt.Errorf("ルート %s の保存に失敗: %w", r.PathPrefix, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("ルート %s のID取得に失敗: %w", r.PathPrefix, err)
		}

		for pos, rule := range rules {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO path_rewrite_rules (route_id, position, pattern, replacement)
				VALUES (?, ?, ?, ?)`,
				id, pos, rule.Pattern, rule.Replacement); err != nil {
				return fmt.Errorf("ルート %s の書き換え規則の保存に失敗: %w", r.PathPrefix, err)
			}
		}
	}

	return tx.Commit()
}
