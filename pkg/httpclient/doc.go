// Package httpclient はバックエンドサービスへの転送に使うHTTPクライアントを管理する。
//
// 転送先のベースURLごとにクライアントを1つだけ生成し、以降のリクエストで再利用する。
// コネクションは転送先単位でプールされる。
package httpclient
