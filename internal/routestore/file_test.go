package routestore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/apigateway/internal/route"
)

// TestParseYAML はYAMLルート設定の解釈を検証する。
func TestParseYAML(t *testing.T) {
	t.Parallel()

	t.Run("すべての項目を読み込めること", func(t *testing.T) {
		t.Parallel()

		routes, err := ParseYAML([]byte(`
routes:
  - path: /api/aireview
    target: http://backend-aireview:3000
    requiresAuth: true
    timeout: 10s
    changeOrigin: false
    pathRewrite:
      - pattern: ^/api/aireview
        replacement: ""
      - pattern: ^/webhook
        replacement: /hooks
  - path: /api/account
    target: http://account:7001
`))
		if err != nil {
			t.Fatalf("ParseYAML()でエラーが発生: %v", err)
		}
		if len(routes) != 2 {
			t.Fatalf("ルート数 = %d, want 2", len(routes))
		}

		r := routes[0]
		if r.PathPrefix != "/api/aireview" || r.Target != "http://backend-aireview:3000" {
			t.Errorf("routes[0] = %+v", r)
		}
		if !r.RequiresAuth {
			t.Error("RequiresAuth = false, want true")
		}
		if r.Timeout != 10*time.Second {
			t.Errorf("Timeout = %v, want 10s", r.Timeout)
		}
		if r.ChangeOrigin {
			t.Error("ChangeOrigin = true, want false")
		}
		if got := route.Rewrite("/api/aireview/webhook/github", r.PathRewrite); got != "/hooks/github" {
			t.Errorf("Rewrite() = %q, want %q", got, "/hooks/github")
		}
	})

	t.Run("省略した項目にデフォルト値が入ること", func(t *testing.T) {
		t.Parallel()

		routes, err := ParseYAML([]byte("routes:\n  - path: /a\n    target: http://a:1\n"))
		if err != nil {
			t.Fatalf("ParseYAML()でエラーが発生: %v", err)
		}
		r := routes[0]
		if r.RequiresAuth {
			t.Error("RequiresAuth = true, want false")
		}
		if !r.ChangeOrigin {
			t.Error("ChangeOrigin = false, want true")
		}
		if r.Timeout != 0 {
			t.Errorf("Timeout = %v, want 0（Registryでデフォルト適用）", r.Timeout)
		}
		if r.PathRewrite != nil {
			t.Errorf("PathRewrite = %+v, want nil", r.PathRewrite)
		}
	})

	t.Run("数字のみのタイムアウトはミリ秒として扱うこと", func(t *testing.T) {
		t.Parallel()

		routes, err := ParseYAML([]byte("routes:\n  - path: /a\n    target: http://a:1\n    timeout: \"1500\"\n"))
		if err != nil {
			t.Fatalf("ParseYAML()でエラーが発生: %v", err)
		}
		if routes[0].Timeout != 1500*time.Millisecond {
			t.Errorf("Timeout = %v, want 1.5s", routes[0].Timeout)
		}
	})

	t.Run("空のYAMLはルート0件になること", func(t *testing.T) {
		t.Parallel()

		routes, err := ParseYAML(nil)
		if err != nil {
			t.Fatalf("ParseYAML()でエラーが発生: %v", err)
		}
		if len(routes) != 0 {
			t.Errorf("ルート数 = %d, want 0", len(routes))
		}
	})

	errorCases := []struct {
		name string
		yaml string
	}{
		{name: "未知のフィールド", yaml: "routes:\n  - path: /a\n    target: http://a:1\n    unknown: x\n"},
		{name: "不正なタイムアウト", yaml: "routes:\n  - path: /a\n    target: http://a:1\n    timeout: soon\n"},
		{name: "負のタイムアウト", yaml: "routes:\n  - path: /a\n    target: http://a:1\n    timeout: -1s\n"},
		{name: "不正な正規表現", yaml: "routes:\n  - path: /a\n    target: http://a:1\n    pathRewrite:\n      - pattern: \"(\"\n"},
		{name: "書き換えがマッピング形式", yaml: "routes:\n  - path: /a\n    target: http://a:1\n    pathRewrite:\n      ^/a: \"\"\n"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name+"はエラーになること", func(t *testing.T) {
			t.Parallel()

			if _, err := ParseYAML([]byte(tt.yaml)); err == nil {
				t.Error("エラーが返るべき")
			}
		})
	}
}

// TestLoadFile はファイルからの読み込みを検証する。
func TestLoadFile(t *testing.T) {
	t.Parallel()

	t.Run("ファイルから読み込めること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "routes.yaml")
		if err := os.WriteFile(path, []byte("routes:\n  - path: /a\n    target: http://a:1\n"), 0o600); err != nil {
			t.Fatalf("テスト用ファイルの作成に失敗: %v", err)
		}

		routes, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile()でエラーが発生: %v", err)
		}
		if len(routes) != 1 || routes[0].PathPrefix != "/a" {
			t.Errorf("routes = %+v", routes)
		}
	})

	t.Run("存在しないファイルはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("エラーが返るべき")
		}
	})
}

// TestMarshalYAML はYAMLへの変換と再読み込みを検証する。
func TestMarshalYAML(t *testing.T) {
	t.Parallel()

	t.Run("デフォルトルートを書き出して同じ内容で読み戻せること", func(t *testing.T) {
		t.Parallel()

		data, err := MarshalYAML(DefaultRoutes())
		if err != nil {
			t.Fatalf("MarshalYAML()でエラーが発生: %v", err)
		}
		if !strings.Contains(string(data), "pattern: ^/api/aireview") {
			t.Errorf("出力に書き換え規則が含まれていない:\n%s", data)
		}

		routes, err := ParseYAML(data)
		if err != nil {
			t.Fatalf("ParseYAML()でエラーが発生: %v", err)
		}
		if len(routes) != 2 {
			t.Fatalf("ルート数 = %d, want 2", len(routes))
		}
		if routes[0].Timeout != 10*time.Second {
			t.Errorf("Timeout = %v, want 10s", routes[0].Timeout)
		}
		if got := route.Rewrite("/api/aireview/webhook/github", routes[0].PathRewrite); got != "/webhook/github" {
			t.Errorf("Rewrite() = %q, want %q", got, "/webhook/github")
		}
	})

	t.Run("関数による書き換えはエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := MarshalYAML([]route.ServiceRoute{{
			PathPrefix:  "/a",
			Target:      "http://a:1",
			PathRewrite: &route.PathRewrite{Func: func(p string) string { return p }},
		}})
		if !errors.Is(err, ErrFuncRewrite) {
			t.Errorf("err = %v, want ErrFuncRewrite", err)
		}
	})
}

// TestDefaultRoutes は組み込みルートがRegistryとして有効であることを検証する。
func TestDefaultRoutes(t *testing.T) {
	t.Parallel()

	reg, err := route.NewRegistry(DefaultRoutes())
	if err != nil {
		t.Fatalf("NewRegistry()でエラーが発生: %v", err)
	}
	r, ok := reg.Find("/api/aireview/webhook/github")
	if !ok {
		t.Fatal("/api/aireview/webhook/github に一致するルートが無い")
	}
	if r.Target != "http://backend-aireview:3000" {
		t.Errorf("Target = %q", r.Target)
	}
	if got := route.Rewrite("/api/aireview/webhook/github", r.PathRewrite); got != "/webhook/github" {
		t.Errorf("Rewrite() = %q, want %q", got, "/webhook/github")
	}
}
