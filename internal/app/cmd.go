package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は開発用バックエンド（IDプロバイダー + ラベリングAPI）を起動することを示す。
	CommandServe Command = "serve"
	// CommandDemo はバックエンドを内蔵起動し、クライアントコアの一連の操作を
	// 実行するデモモードを示す。
	CommandDemo Command = "demo"
	// CommandMigrate はローカル状態DBのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "demo":
		return CommandDemo
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
