package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// ListTrades reads every completed trade from a sqlite ledger, oldest exit
// first. Used by the report command; the engine itself never reads back.
func ListTrades(path string) ([]TradeRecord, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT trade_id, symbol, quantity, entry_price, exit_price, entry_time, exit_time, pnl, reason
		FROM trades ORDER BY exit_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.TradeID, &t.Symbol, &t.Quantity, &t.EntryPrice, &t.ExitPrice,
			&t.EntryTime, &t.ExitTime, &t.PnL, &t.Reason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListEquity reads the equity curve from a sqlite ledger in time order.
func ListEquity(path string) ([]EquitySnapshot, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT time, equity, daily_pnl FROM equity ORDER BY time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.Equity, &e.DailyPnL); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
