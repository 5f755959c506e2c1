package store

import (
	"context"
	"sync"

	"github.com/syssam/consql"
	"github.com/syssam/consql/dialect"
	"github.com/syssam/consql/schema"
)

// Tx is a transaction begun by Store.Tx. Pass it to calls with Using.
// Commit invalidates the cached listings of every table written in it.
type Tx struct {
	dialect.Tx
	store *Store
	ctx   context.Context

	mu      sync.Mutex
	written map[string]*schema.Schema
}

// Tx begins a transaction on the store's executor, which must be able to
// start one, as a dialect.Driver does.
//
//	tx, err := st.Tx(ctx)
//	if err != nil {
//	    return err
//	}
//	if err := st.Save(ctx, account, store.Using(tx)); err != nil {
//	    return errors.Join(err, tx.Rollback())
//	}
//	return tx.Commit()
func (s *Store) Tx(ctx context.Context) (*Tx, error) {
	b, ok := s.exec.(interface {
		Tx(context.Context) (dialect.Tx, error)
	})
	if !ok {
		return nil, consql.NewUsageError("store.Tx", "executor cannot begin transactions")
	}
	tx, err := b.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, store: s, ctx: context.WithoutCancel(ctx)}, nil
}

func (tx *Tx) touch(sc *schema.Schema) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.written == nil {
		tx.written = make(map[string]*schema.Schema)
	}
	tx.written[sc.Table().Name] = sc
}

// Commit commits the transaction, then invalidates the tables written in it.
func (tx *Tx) Commit() error {
	if err := tx.Tx.Commit(); err != nil {
		return err
	}
	tx.mu.Lock()
	written := tx.written
	tx.written = nil
	tx.mu.Unlock()
	for _, sc := range written {
		tx.store.Invalidate(tx.ctx, sc)
	}
	return nil
}

// Rollback aborts the transaction.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	tx.written = nil
	tx.mu.Unlock()
	return tx.Tx.Rollback()
}

var _ dialect.Tx = (*Tx)(nil)
