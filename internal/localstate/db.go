package localstate

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open はローカル状態用のSQLiteデータベースを開く。
// pathはファイルパスを指定する（例: "labelplay.db"）。
// sql.Openは接続を試行しないため、実際の確認にはdb.Ping()を使用すること。
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local state database: %w", err)
	}

	return db, nil
}
