// ルート設定を管理するコマンド。
//
//	routectl import -file routes.yaml -db routes.db
//	routectl list   -db routes.db | -file routes.yaml
//	routectl token  -secret xxx -user user-1 -name alice
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/nao1215/apigateway/internal/route"
	"github.com/nao1215/apigateway/internal/routestore"
	"github.com/nao1215/apigateway/pkg/middleware"
)

// errUsage はコマンドの使い方が誤っている場合のエラー。
var errUsage = errors.New("usage: routectl <import|list|token> [flags]")

func main() {
	log.SetFlags(0)
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("routectl: %v", err)
	}
}

// run はサブコマンドを実行する。
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "import":
		return runImport(ctx, args[1:], out)
	case "list":
		return runList(ctx, args[1:], out)
	case "token":
		return runToken(args[1:], out)
	default:
		return fmt.Errorf("不明なサブコマンド %q: %w", args[0], errUsage)
	}
}

// runImport はYAMLファイルのルートを検証してSQLiteストアに保存する。
func runImport(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "YAMLルート設定ファイル")
	dsn := fs.String("db", "", "SQLiteルートストアのDSN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" || *dsn == "" {
		return errors.New("import には -file と -db が必要です")
	}

	routes, err := routestore.LoadFile(*file)
	if err != nil {
		return err
	}
	// 起動時と同じ検証を保存前に行う。
	if _, err := route.NewRegistry(routes); err != nil {
		return err
	}

	store, err := routestore.Open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Import(ctx, routes); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%d件のルートを保存しました: %s\n", len(routes), *dsn)
	return err
}

// runList はゲートウェイが読み込むルートを照合順にYAMLで出力する。
func runList(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var src routestore.Source
	fs.StringVar(&src.File, "file", "", "YAMLルート設定ファイル")
	fs.StringVar(&src.DSN, "db", "", "SQLiteルートストアのDSN")
	if err := fs.Parse(args); err != nil {
		return err
	}

	routes, err := src.Load(ctx)
	if err != nil {
		return err
	}
	registry, err := route.NewRegistry(routes)
	if err != nil {
		return err
	}
	data, err := routestore.MarshalYAML(registry.Routes())
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// runToken は開発用のJWTを発行する。
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "HS256の共有鍵")
	userID := fs.String("user", "dev-user", "ユーザーID")
	username := fs.String("name", "dev@localhost", "ユーザー名")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("-secret または JWT_SECRET が必要です")
	}

	token, err := middleware.GenerateJWT(*secret, *userID, *username)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
