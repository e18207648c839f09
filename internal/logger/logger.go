// Package logger はslogによるJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer, level slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// LevelFor は実行環境とLOG_LEVELの指定からログレベルを決める。
// 指定がない場合、開発環境はdebug、それ以外はinfoとする。
func LevelFor(env, override string) slog.Level {
	if override != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(override)); err == nil {
			return level
		}
	}
	if strings.EqualFold(env, "DEVELOPMENT") {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, level slog.Leveler) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, level))
}
