package database

import (
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
)

// queryBudget counts how often each connection went back to the pool and
// retires it once the limit is reached.
type queryBudget struct {
	limit int64

	mu      sync.Mutex
	uses    map[*pgx.Conn]int64
	retired atomic.Int64
}

func newQueryBudget(limit int64) *queryBudget {
	return &queryBudget{
		limit: limit,
		uses:  make(map[*pgx.Conn]int64),
	}
}

// release is installed as pgxpool.Config.AfterRelease. Returning false makes
// the pool destroy the connection.
func (b *queryBudget) release(conn *pgx.Conn) bool {
	if b.limit <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.uses[conn]++
	if b.uses[conn] < b.limit {
		return true
	}
	delete(b.uses, conn)
	b.retired.Add(1)
	return false
}

// forget is installed as pgxpool.Config.BeforeClose.
func (b *queryBudget) forget(conn *pgx.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.uses, conn)
}

func (b *queryBudget) tracked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.uses)
}
