// Package middleware はゲートウェイで使用する共通ミドルウェアを提供する。
//
// JWTによるトークン検証（TokenVerifier）、パニックリカバリ、CORS、
// リクエストID付与、Prometheusメトリクス記録を含む。
package middleware
