package route

import (
	"fmt"
	"regexp"
)

// RewriteRule は正規表現によるパス置換規則の1件。
type RewriteRule struct {
	// Pattern は置換対象を表す正規表現。
	Pattern *regexp.Regexp
	// Replacement は置換後の文字列。$1 などのキャプチャグループ参照を含められる。
	Replacement string
}

// NewRewriteRule は正規表現文字列から置換規則を生成する。
func NewRewriteRule(pattern, replacement string) (RewriteRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return RewriteRule{}, fmt.Errorf("パス書き換えの正規表現が不正: %q: %w", pattern, err)
	}
	return RewriteRule{Pattern: re, Replacement: replacement}, nil
}

// PathRewrite はサービスごとのパス書き換え設定。
// Func が設定されている場合は Rules より優先される。
type PathRewrite struct {
	// Rules は宣言順に適用する置換規則。
	// 後続の規則は前の規則の出力に対して適用される。
	Rules []RewriteRule
	// Func は任意の書き換え関数。純粋関数であること。
	Func func(path string) string
}

// Rewrite はパスに書き換え規則を適用する。rw が nil の場合はパスをそのまま返す。
// クエリ文字列を含まないパスを渡すこと。
func Rewrite(path string, rw *PathRewrite) string {
	if rw == nil {
		return path
	}
	if rw.Func != nil {
		return rw.Func(path)
	}

	rewritten := path
	for _, rule := range rw.Rules {
		if rule.Pattern == nil {
			continue
		}
		rewritten = rule.Pattern.ReplaceAllString(rewritten, rule.Replacement)
	}
	return rewritten
}
