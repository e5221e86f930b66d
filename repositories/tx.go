package repositories

import (
	"context"
	"database/sql"
)

// Tx — открытая транзакция: исполнитель запросов с фиксацией и откатом.
// *sql.Tx удовлетворяет интерфейсу напрямую.
type Tx interface {
	SQLExecutor
	Commit() error
	Rollback() error
}

// TxBeginner открывает транзакции для сервисного слоя. Сервисы зависят
// от него, а не от *sql.DB, чтобы транзакционные пути были подменяемы.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

type sqlTxBeginner struct {
	db *sql.DB
}

func NewSQLTxBeginner(db *sql.DB) TxBeginner {
	return &sqlTxBeginner{db: db}
}

func (b *sqlTxBeginner) BeginTx(ctx context.Context) (Tx, error) {
	return b.db.BeginTx(ctx, nil)
}
