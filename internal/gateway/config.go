package gateway

import (
	"log"
	"os"
	"strings"

	"github.com/nao1215/apigateway/internal/routestore"
)

// defaultJWTSecret は JWT_SECRET 未設定時に使う開発用の秘密鍵。
const defaultJWTSecret = "dev-secret-key"

// Config はゲートウェイの起動設定。起動時に一度だけ読み込む。
type Config struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はトークン検証に使うHS256の共有鍵。
	JWTSecret string
	// PublicPrefixes は認証なしで通すパスのプレフィックス。
	PublicPrefixes []string
	// Routes はルート設定の読み込み元。
	Routes routestore.Source
	// AllowedOrigins はCORSを許可するオリジン。空の場合CORSは無効。
	AllowedOrigins []string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() Config {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Printf("警告: JWT_SECRET が設定されていないため開発用の秘密鍵を使用します")
		secret = defaultJWTSecret
	}

	return Config{
		Port:           getEnvOr("PORT", "3000"),
		JWTSecret:      secret,
		PublicPrefixes: ParseList(os.Getenv("PUBLIC_PREFIXES")),
		Routes: routestore.Source{
			File: os.Getenv("ROUTES_FILE"),
			DSN:  os.Getenv("ROUTES_DB"),
		},
		AllowedOrigins: ParseList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
}

// ParseList はカンマ区切りの文字列を分割する。前後の空白を除き、空要素は捨てる。
func ParseList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
