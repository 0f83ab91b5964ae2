// Package route はバックエンドサービスのルーティングテーブルを提供する。
//
// パスプレフィックスごとに転送先サービスを定義し、最長一致（パスセグメント境界を考慮）で
// リクエストパスに対応するサービスを解決する。パスの書き換え規則もこのパッケージが持つ。
// テーブルは起動時に一度だけ構築され、以降は変更されない。
package route
