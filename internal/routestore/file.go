package routestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/nao1215/apigateway/internal/route"
	"gopkg.in/yaml.v3"
)

// ErrFuncRewrite は関数による書き換えを永続化しようとした場合のエラー。
var ErrFuncRewrite = errors.New("関数によるパス書き換えは保存できません")

// FileConfig はYAMLルート設定ファイルの構造。
type FileConfig struct {
	Routes []FileRoute `yaml:"routes"`
}

// FileRoute はYAMLで記述するサービス1件。
type FileRoute struct {
	Path         string `yaml:"path"`
	Target       string `yaml:"target"`
	RequiresAuth bool   `yaml:"requiresAuth"`
	// Timeout は "10s" のような期間表記、または数字のみの場合はミリ秒。
	Timeout      string        `yaml:"timeout,omitempty"`
	ChangeOrigin *bool         `yaml:"changeOrigin,omitempty"`
	PathRewrite  []FileRewrite `yaml:"pathRewrite,omitempty"`
}

// FileRewrite はYAMLで記述する置換規則1件。リストの順に適用する。
type FileRewrite struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// LoadFile はYAMLファイルからルートを読み込む。
func LoadFile(path string) ([]route.ServiceRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ルート設定ファイルの読み込みに失敗: %w", err)
	}
	routes, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return routes, nil
}

// ParseYAML はYAMLからルートを組み立てる。未知のフィールドはエラーにする。
func ParseYAML(data []byte) ([]route.ServiceRoute, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}

	routes := make([]route.ServiceRoute, 0, len(cfg.Routes))
	for i, fr := range cfg.Routes {
		r, err := fr.toServiceRoute()
		if err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// MarshalYAML はルートをYAMLファイル形式に変換する。
func MarshalYAML(routes []route.ServiceRoute) ([]byte, error) {
	cfg := FileConfig{Routes: make([]FileRoute, 0, len(routes))}
	for _, r := range routes {
		fr, err := fromServiceRoute(r)
		if err != nil {
			return nil, err
		}
		cfg.Routes = append(cfg.Routes, fr)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("YAMLの生成に失敗: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("YAMLの生成に失敗: %w", err)
	}
	return buf.Bytes(), nil
}

func (fr FileRoute) toServiceRoute() (route.ServiceRoute, error) {
	timeout, err := parseTimeout(fr.Timeout)
	if err != nil {
		return route.ServiceRoute{}, err
	}

	changeOrigin := true
	if fr.ChangeOrigin != nil {
		changeOrigin = *fr.ChangeOrigin
	}

	rw, err := buildRewrite(fr.PathRewrite)
	if err != nil {
		return route.ServiceRoute{}, err
	}

	return route.ServiceRoute{
		PathPrefix:   fr.Path,
		Target:       fr.Target,
		RequiresAuth: fr.RequiresAuth,
		Timeout:      timeout,
		ChangeOrigin: changeOrigin,
		PathRewrite:  rw,
	}, nil
}

func fromServiceRoute(r route.ServiceRoute) (FileRoute, error) {
	rules, err := rewriteRules(r)
	if err != nil {
		return FileRoute{}, err
	}
	changeOrigin := r.ChangeOrigin
	fr := FileRoute{
		Path:         r.PathPrefix,
		Target:       r.Target,
		RequiresAuth: r.RequiresAuth,
		ChangeOrigin: &changeOrigin,
		PathRewrite:  rules,
	}
	if r.Timeout > 0 {
		fr.Timeout = r.Timeout.String()
	}
	return fr, nil
}

// rewriteRules はルートの置換規則を永続化用の形式に変換する。
func rewriteRules(r route.ServiceRoute) ([]FileRewrite, error) {
	if r.PathRewrite == nil {
		return nil, nil
	}
	if r.PathRewrite.Func != nil {
		return nil, fmt.Errorf("%s: %w", r.PathPrefix, ErrFuncRewrite)
	}
	rules := make([]FileRewrite, 0, len(r.PathRewrite.Rules))
	for _, rule := range r.PathRewrite.Rules {
		rules = append(rules, FileRewrite{Pattern: rule.Pattern.String(), Replacement: rule.Replacement})
	}
	return rules, nil
}

// buildRewrite は置換規則のリストから書き換え設定を組み立てる。空の場合は nil。
func buildRewrite(rules []FileRewrite) (*route.PathRewrite, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	rw := &route.PathRewrite{Rules: make([]route.RewriteRule, 0, len(rules))}
	for _, r := range rules {
		rule, err := route.NewRewriteRule(r.Pattern, r.Replacement)
		if err != nil {
			return nil, err
		}
		rw.Rules = append(rw.Rules, rule)
	}
	return rw, nil
}

// parseTimeout はタイムアウト表記を解釈する。空の場合は0（デフォルト適用）。
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("タイムアウトが負の値です: %q", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("タイムアウトの形式が不正: %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("タイムアウトが負の値です: %q", s)
	}
	return d, nil
}
