package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// contextKeyIdentity はGinコンテキストに認証済みユーザー情報を格納するキー。
const contextKeyIdentity = "identity"

// ErrEmptyToken は空のトークン文字列が渡された場合のエラー。
var ErrEmptyToken = errors.New("トークンが空です")

// UserIdentity はトークン検証で得られたユーザー情報。
// 1リクエストの間だけコンテキストに保持し、永続化しない。
type UserIdentity struct {
	// UserID はユーザーの一意識別子。
	UserID string
	// Username はユーザー名。
	Username string
	// ExtraClaims はトークンに含まれるすべてのクレーム。
	ExtraClaims map[string]any
}

// TokenVerifier はBearerトークンを検証してユーザー情報を返す。
// 失敗理由（期限切れ、署名不正など）は呼び出し側では区別しない。
type TokenVerifier interface {
	Verify(token string) (*UserIdentity, error)
}

// JWTClaims はゲートウェイが発行するJWTのクレーム。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID はユーザーの一意識別子。
	UserID string `json:"userId"`
	// Username はユーザー名。
	Username string `json:"username"`
}

// GenerateJWT はユーザー情報からHS256署名のJWTを生成する。
// 開発用トークンの発行とテストで使う。
func GenerateJWT(secret, userID, username string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "api-gateway",
		},
		UserID:   userID,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// JWTVerifier はHS256の共有鍵でJWTを検証する TokenVerifier。
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier は新しいJWTVerifierを生成する。
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify はトークンの署名と有効期限を検証し、ユーザー情報を返す。
// userId は userId, sub, id の順、username は username, name, email の順に探す。
func (v *JWTVerifier) Verify(tokenString string) (*UserIdentity, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("JWTの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("JWTが無効です")
	}

	extra := make(map[string]any, len(claims))
	for k, val := range claims {
		extra[k] = val
	}

	return &UserIdentity{
		UserID:      firstClaim(claims, "userId", "sub", "id"),
		Username:    firstClaim(claims, "username", "name", "email"),
		ExtraClaims: extra,
	}, nil
}

// firstClaim は指定したキーの順にクレームを探し、最初に見つかった値を文字列で返す。
func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		v, ok := claims[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			return val
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return fmt.Sprint(val)
		}
	}
	return ""
}

// ExtractBearerToken はAuthorizationヘッダーからトークンを取り出す。
// 形式は "Bearer <token>"。スキーム名は大文字小文字を区別する。
func ExtractBearerToken(authorization string) (string, bool) {
	if authorization == "" {
		return "", false
	}
	parts := strings.Split(authorization, " ")
	if len(parts) < 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// SetIdentity は認証済みユーザー情報をGinコンテキストに設定する。
func SetIdentity(c *gin.Context, id *UserIdentity) {
	c.Set(contextKeyIdentity, id)
}

// GetIdentity はGinコンテキストから認証済みユーザー情報を取得する。
// 認証が行われていない場合は nil を返す。
func GetIdentity(c *gin.Context) *UserIdentity {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return nil
	}
	id, _ := v.(*UserIdentity)
	return id
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
func GetUserID(c *gin.Context) string {
	if id := GetIdentity(c); id != nil {
		return id.UserID
	}
	return ""
}
