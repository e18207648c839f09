package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/socialhub/internal/database"
	"github.com/hitoshi/socialhub/internal/repository"
	"github.com/hitoshi/socialhub/internal/worker/cleanup"
)

// サブコマンド名
const (
	// CommandServe はWebサーバーを起動する。サブコマンド省略時の既定。
	CommandServe = "serve"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate = "migrate"
	// CommandCleanup は期限切れのログインセッションを削除する。
	CommandCleanup = "cleanup"
	// CommandHealthcheck はローカルのサーバーにヘルスチェックを行う。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck = "healthcheck"
)

// NewRootCommand はsocialhubのルートコマンドを生成する。
// ログはwに出力する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "socialhub",
		Short:         "Social account hub web application",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), w)
		},
	}
	root.SetOut(w)

	root.AddCommand(
		newServeCmd(w),
		newMigrateCmd(w),
		newCleanupCmd(w),
		newHealthcheckCmd(),
	)
	return root
}

func newServeCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   CommandServe,
		Short: "Start the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), w)
		},
	}
}

func newMigrateCmd(w io.Writer) *cobra.Command {
	var (
		down   int
		status bool
	)
	cmd := &cobra.Command{
		Use:   CommandMigrate,
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			switch {
			case status:
				return runMigrateStatus(cmd.OutOrStdout(), cfg.DatabaseURL)
			case down > 0:
				return runMigrateDown(cfg.DatabaseURL, down)
			default:
				return runMigrate(cfg.DatabaseURL)
			}
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back the given number of migrations")
	cmd.Flags().BoolVar(&status, "status", false, "print the current schema version")
	cmd.MarkFlagsMutuallyExclusive("down", "status")
	return cmd
}

func newCleanupCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   CommandCleanup,
		Short: "Delete expired login sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runCleanup(cmd.Context(), cmd.OutOrStdout(), cfg.DatabaseURL)
		},
	}
}

func newHealthcheckCmd() *cobra.Command {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	cmd := &cobra.Command{
		Use:   CommandHealthcheck,
		Short: "Check the health endpoint of a local server",
		Args:  cobra.NoArgs,
		// 軽量サブコマンドのため、設定の読み込みとログの初期化をスキップする
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd.Context(), port)
		},
	}
	cmd.Flags().StringVar(&port, "port", port, "server port (env SERVER_PORT)")
	return cmd
}

// runCleanup は期限切れのログインセッションを一度だけ削除する。
func runCleanup(ctx context.Context, out io.Writer, databaseURL string) error {
	db, err := database.Open(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	deleted, err := job.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %d expired sessions\n", deleted)
	return nil
}
