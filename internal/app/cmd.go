package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// サブコマンド名。
const (
	// CommandServe はWebサーバーモードで起動する。引数なしの場合のデフォルト。
	CommandServe = "serve"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate = "migrate"
	// CommandCleanup は期限切れセッションを1回削除する。
	CommandCleanup = "cleanup"
	// CommandHealthcheck はヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck = "healthcheck"
)

// Version はビルド時に -ldflags で上書きされる。
var Version = "dev"

// NewRootCommand はアプリケーションのルートコマンドを生成する。
// wはログの出力先。サブコマンド未指定の場合はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "memberboard",
		Short: "Discordサーバーのメンバー限定掲示板",
		Long: `memberboard はDiscord OAuth2でログインし、指定されたサーバー（ギルド）の
メンバーであることを確認できたユーザーだけが閲覧・投稿できる掲示板です。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, w)
		},
	}
	root.SetVersionTemplate(`{{printf "memberboard version %s\n" .Version}}`)

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
		Short: "Webサーバーを起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, w)
		},
	}
}

func serve(cmd *cobra.Command, w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return err
	}
	return runServe(cmd.Context(), cfg)
}

func newMigrateCmd(w io.Writer) *cobra.Command {
	var down int
	var showVersion bool

	cmd := &cobra.Command{
		Use:   CommandMigrate,
		Short: "セッションストアのデータベースマイグレーションを実行する",
		Long: `DATABASE_URL で指定したPostgreSQLにマイグレーションを適用する。
--down を指定した場合は指定件数だけロールバックする。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cmd.OutOrStdout(), cfg, migrateOptions{
				Down:        down,
				ShowVersion: showVersion,
			})
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "ロールバックするマイグレーション数")
	cmd.Flags().BoolVar(&showVersion, "version", false, "現在のスキーマバージョンを表示する")
	return cmd
}

func newCleanupCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   CommandCleanup,
		Short: "期限切れのサーバーサイドセッションを削除する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runCleanup(cmd.Context(), cfg)
		},
	}
}

// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
func newHealthcheckCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   CommandHealthcheck,
		Short: "ローカルのWebサーバーの /health を確認する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = os.Getenv("SERVER_PORT")
			}
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(cmd.Context(), "http://localhost:"+port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "確認するポート（省略時はSERVER_PORT）")
	return cmd
}
