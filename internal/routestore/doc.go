// Package routestore はルーティングテーブルの読み込み元を提供する。
//
// YAMLファイル、SQLiteデータベース、組み込みのデフォルト設定の3種類があり、
// いずれも起動時に一度だけ読み込む。読み込んだ後に設定が変わっても反映しない。
package routestore
