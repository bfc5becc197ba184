package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite persists the ledger in a local sqlite database.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, quantity, entry_price, exit_price, entry_time, exit_time, pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Symbol, t.Quantity, t.EntryPrice, t.ExitPrice,
		t.EntryTime, t.ExitTime, t.PnL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, equity, daily_pnl) VALUES (?, ?, ?)`,
		e.Time, e.Equity, e.DailyPnL,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
