// Command naftaapi は給油所の燃料価格を参照するHTTP APIを起動する。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（既定）
//	migrate      ストアのテーブル・インデックスを準備する
//	healthcheck  稼働中のサーバーの /health を確認する
package main

import (
	"fmt"
	"os"

	"github.com/josemqu/precio-nafta-api/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "naftaapi: %v\n", err)
		os.Exit(1)
	}
}
