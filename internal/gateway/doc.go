// Package gateway はAPI GatewayのHTTPサーバーを提供する。
//
// すべての外部リクエストを受け付け、アクセス判定を行ったうえで
// パスのプレフィックスに対応するバックエンドサービスへ転送する。
// 外部からアクセス可能な唯一の入口であり、セキュリティの境界線として機能する。
package gateway
