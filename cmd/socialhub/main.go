// Command socialhub はsocialhubのWebサーバーと運用サブコマンドを提供する。
package main

import (
	"os"

	"github.com/hitoshi/socialhub/internal/app"
)

func main() {
	os.Exit(app.Main())
}
