package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// signClaims はテスト用に任意のクレームでトークンを署名する。
func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()

	tokenStr, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return tokenStr
}

// TestGenerateJWT はGenerateJWT関数を検証する。
func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("正常にJWTトークンを生成できること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "user-123", "alice")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if !token.Valid {
			t.Fatal("トークンが無効")
		}
		if claims.UserID != "user-123" {
			t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
		}
		if claims.Username != "alice" {
			t.Errorf("Username = %q, want %q", claims.Username, "alice")
		}
		if claims.Subject != "user-123" {
			t.Errorf("Subject = %q, want %q", claims.Subject, "user-123")
		}
		if token.Method.Alg() != "HS256" {
			t.Errorf("署名アルゴリズム = %q, want %q", token.Method.Alg(), "HS256")
		}
	})

	t.Run("トークンの有効期限が24時間後であること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr, err := GenerateJWT(testSecret, "user-exp", "exp")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		if _, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		}); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}

		expectedExpiry := before.Add(24 * time.Hour)
		if claims.ExpiresAt.Time.Before(expectedExpiry.Add(-1 * time.Minute)) {
			t.Errorf("ExpiresAt = %v, 期待する最小値: %v", claims.ExpiresAt.Time, expectedExpiry.Add(-1*time.Minute))
		}
		if claims.ExpiresAt.Time.After(expectedExpiry.Add(1 * time.Minute)) {
			t.Errorf("ExpiresAt = %v, 期待する最大値: %v", claims.ExpiresAt.Time, expectedExpiry.Add(1*time.Minute))
		}
	})
}

// TestJWTVerifier はJWTVerifierを検証する。
func TestJWTVerifier(t *testing.T) {
	t.Parallel()

	verifier := NewJWTVerifier(testSecret)

	t.Run("GenerateJWTで発行したトークンを検証できること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "user-ok", "ok-user")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		id, err := verifier.Verify(tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if id.UserID != "user-ok" {
			t.Errorf("UserID = %q, want %q", id.UserID, "user-ok")
		}
		if id.Username != "ok-user" {
			t.Errorf("Username = %q, want %q", id.Username, "ok-user")
		}
		if id.ExtraClaims["iss"] != "api-gateway" {
			t.Errorf("ExtraClaims[iss] = %v, want %q", id.ExtraClaims["iss"], "api-gateway")
		}
	})

	t.Run("userIdが無い場合はsubとemailから補完されること", func(t *testing.T) {
		t.Parallel()

		tokenStr := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub":   "sub-1",
			"email": "a@example.com",
			"role":  "admin",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})

		id, err := verifier.Verify(tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if id.UserID != "sub-1" {
			t.Errorf("UserID = %q, want %q", id.UserID, "sub-1")
		}
		if id.Username != "a@example.com" {
			t.Errorf("Username = %q, want %q", id.Username, "a@example.com")
		}
		if id.ExtraClaims["role"] != "admin" {
			t.Errorf("ExtraClaims[role] = %v, want %q", id.ExtraClaims["role"], "admin")
		}
	})

	t.Run("数値のidとnameから補完されること", func(t *testing.T) {
		t.Parallel()

		tokenStr := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"id":   12345,
			"name": "bob",
		})

		id, err := verifier.Verify(tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if id.UserID != "12345" {
			t.Errorf("UserID = %q, want %q", id.UserID, "12345")
		}
		if id.Username != "bob" {
			t.Errorf("Username = %q, want %q", id.Username, "bob")
		}
	})

	t.Run("異なるシークレットで署名されたトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT("different-secret", "user-diff", "diff")
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		if _, err := verifier.Verify(tokenStr); err == nil {
			t.Error("異なるシークレットのトークンが検証を通過した")
		}
	})

	t.Run("期限切れトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		tokenStr := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"userId": "user-expired",
			"exp":    time.Now().Add(-1 * time.Hour).Unix(),
		})
		if _, err := verifier.Verify(tokenStr); err == nil {
			t.Error("期限切れトークンが検証を通過した")
		}
	})

	t.Run("HS256以外のアルゴリズムは拒否されること", func(t *testing.T) {
		t.Parallel()

		tokenStr := signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{
			"userId": "user-hs512",
		})
		if _, err := verifier.Verify(tokenStr); err == nil {
			t.Error("HS512のトークンが検証を通過した")
		}
	})

	t.Run("不正な文字列は拒否されること", func(t *testing.T) {
		t.Parallel()

		if _, err := verifier.Verify("invalid-token-string"); err == nil {
			t.Error("不正なトークンが検証を通過した")
		}
	})

	t.Run("空文字列はErrEmptyTokenになること", func(t *testing.T) {
		t.Parallel()

		if _, err := verifier.Verify(""); !errors.Is(err, ErrEmptyToken) {
			t.Errorf("err = %v, want ErrEmptyToken", err)
		}
	})
}

// TestExtractBearerToken はAuthorizationヘッダーの解析を検証する。
func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		header    string
		wantToken string
		wantOK    bool
	}{
		{name: "正しい形式", header: "Bearer abc.def.ghi", wantToken: "abc.def.ghi", wantOK: true},
		{name: "ヘッダーなし", header: "", wantOK: false},
		{name: "スキームなし", header: "abc.def.ghi", wantOK: false},
		{name: "小文字のbearer", header: "bearer abc", wantOK: false},
		{name: "Basicスキーム", header: "Basic dXNlcjpwYXNz", wantOK: false},
		{name: "トークンなし", header: "Bearer", wantOK: false},
		{name: "トークンが空", header: "Bearer ", wantOK: false},
		{name: "余分な要素は無視", header: "Bearer abc extra", wantToken: "abc", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, ok := ExtractBearerToken(tt.header)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

// TestIdentityContext はコンテキストへのユーザー情報の設定と取得を検証する。
func TestIdentityContext(t *testing.T) {
	t.Parallel()

	t.Run("設定したユーザー情報を取得できること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		SetIdentity(c, &UserIdentity{UserID: "user-get-id", Username: "u"})

		if got := GetUserID(c); got != "user-get-id" {
			t.Errorf("GetUserID() = %q, want %q", got, "user-get-id")
		}
		if got := GetIdentity(c); got == nil || got.Username != "u" {
			t.Errorf("GetIdentity() = %+v", got)
		}
	})

	t.Run("未設定の場合はnilと空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetIdentity(c); got != nil {
			t.Errorf("GetIdentity() = %+v, want nil", got)
		}
		if got := GetUserID(c); got != "" {
			t.Errorf("GetUserID() = %q, want empty string", got)
		}
	})

	t.Run("型が異なる値が設定されている場合はnilが返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(contextKeyIdentity, "not-an-identity")
		if got := GetIdentity(c); got != nil {
			t.Errorf("GetIdentity() = %+v, want nil", got)
		}
	})
}
