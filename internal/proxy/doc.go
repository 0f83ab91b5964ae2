// Package proxy はマッチしたルートのバックエンドへリクエストを転送し、
// レスポンスをそのまま中継する。
//
// 転送時にはクライアントが送った x-user-* ヘッダーを取り除き、
// 検証済みのユーザー情報から x-user-id と x-username を付け直す。
// バックエンドが返したステータスとボディは加工せずに返す。
package proxy
