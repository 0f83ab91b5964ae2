// API Gatewayのエントリポイント。
// すべての外部リクエストを受け付け、認証とルーティングを行ってバックエンドへ転送する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"

	"github.com/nao1215/apigateway/internal/gateway"
)

func main() {
	cfg := gateway.LoadConfig()

	server, err := gateway.NewServer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Gatewayサーバーの初期化に失敗: %v", err)
	}

	log.Printf("Gatewayサービスを起動します: :%s (routes=%s)", cfg.Port, cfg.Routes)
	if err := server.Run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
}
