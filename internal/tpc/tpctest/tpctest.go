// Package tpctest provides in-memory stand-ins for the local transaction and
// coordinator plumbing.
package tpctest

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/apperr"
	"github.com/matheusmosca/orders-tpc/internal/tpc"
)

// DB hands out Tx values and remembers them.
type DB struct {
	mu  sync.Mutex
	txs []*Tx

	// BeginErr fails every BeginTx.
	BeginErr error
	// PrepareErr fails every PREPARE TRANSACTION statement.
	PrepareErr error
}

func (db *DB) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if db.BeginErr != nil {
		return nil, db.BeginErr
	}
	tx := &Tx{db: db}
	db.mu.Lock()
	db.txs = append(db.txs, tx)
	db.mu.Unlock()
	return tx, nil
}

// Txs returns every transaction begun so far.
func (db *DB) Txs() []*Tx {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]*Tx(nil), db.txs...)
}

// Prepared returns the ids of every PREPARE TRANSACTION issued so far.
func (db *DB) Prepared() []string {
	var ids []string
	for _, tx := range db.Txs() {
		if id := tx.PreparedID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Tx records the statements it receives. Methods it does not override panic
// through the nil embedded interface.
type Tx struct {
	pgx.Tx

	db         *DB
	mu         sync.Mutex
	statements []string
	committed  bool
	rolledBack bool
	onEnd      []func()
}

func (tx *Tx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended() {
		return pgconn.CommandTag{}, pgx.ErrTxClosed
	}
	if strings.HasPrefix(sql, "PREPARE TRANSACTION") && tx.db.PrepareErr != nil {
		return pgconn.CommandTag{}, tx.db.PrepareErr
	}
	tx.statements = append(tx.statements, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (tx *Tx) Commit(context.Context) error {
	return tx.end(func() { tx.committed = true })
}

func (tx *Tx) Rollback(context.Context) error {
	return tx.end(func() { tx.rolledBack = true })
}

func (tx *Tx) end(mark func()) error {
	tx.mu.Lock()
	if tx.ended() {
		tx.mu.Unlock()
		return pgx.ErrTxClosed
	}
	mark()
	callbacks := tx.onEnd
	tx.onEnd = nil
	tx.mu.Unlock()

	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i]()
	}
	return nil
}

func (tx *Tx) ended() bool {
	return tx.committed || tx.rolledBack
}

// OnEnd registers f to run when the transaction commits or rolls back. Fake
// stores use it to release row locks.
func (tx *Tx) OnEnd(f func()) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.onEnd = append(tx.onEnd, f)
}

func (tx *Tx) Committed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.committed
}

func (tx *Tx) RolledBack() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.rolledBack
}

// PreparedID returns the id this transaction was prepared under, if any.
func (tx *Tx) PreparedID() string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for _, s := range tx.statements {
		if rest, ok := strings.CutPrefix(s, "PREPARE TRANSACTION '"); ok {
			return strings.TrimSuffix(rest, "'")
		}
	}
	return ""
}

// Registry records registered ids.
type Registry struct {
	mu  sync.Mutex
	ids []string
	Err error
}

func (r *Registry) Register(_ context.Context, id string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

// Participant returns a participant backed by a fresh DB and Registry.
func Participant() (tpc.Participant, *DB, *Registry) {
	db, reg := &DB{}, &Registry{}
	return tpc.Participant{DB: db, Registry: reg}, db, reg
}

// Coordinator is an in-memory coordinator. Prepare marks an id pending, and
// Commit and Rollback finalize it idempotently.
type Coordinator struct {
	mu         sync.Mutex
	pending    map[string]bool
	committed  []string
	rolledBack []string

	CommitErr   error
	RollbackErr error
}

func NewCoordinator() *Coordinator {
	return &Coordinator{pending: map[string]bool{}}
}

func (c *Coordinator) Prepare(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = true
}

func (c *Coordinator) Commit(_ context.Context, id string) error {
	if c.CommitErr != nil {
		return c.CommitErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	c.committed = append(c.committed, id)
	return nil
}

func (c *Coordinator) Rollback(_ context.Context, id string) error {
	if c.RollbackErr != nil {
		return c.RollbackErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	c.rolledBack = append(c.rolledBack, id)
	return nil
}

func (c *Coordinator) ListActive(context.Context) ([]api.PreparedTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.PreparedTransaction, 0, len(c.pending))
	for id := range c.pending {
		out = append(out, api.PreparedTransaction{ID: id})
	}
	return out, nil
}

func (c *Coordinator) Record(_ context.Context, id string) (*tpc.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.pending[id]:
		return &tpc.Record{ID: id, Status: tpc.StatusPrepared}, nil
	case contains(c.committed, id):
		return &tpc.Record{ID: id, Status: tpc.StatusCommitted}, nil
	case contains(c.rolledBack, id):
		return &tpc.Record{ID: id, Status: tpc.StatusRolledBack}, nil
	}
	return nil, apperr.NotFound("prepared transaction %s not found", id)
}

func (c *Coordinator) Committed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.committed...)
}

func (c *Coordinator) RolledBack() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.rolledBack...)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

var _ tpc.Service = (*Coordinator)(nil)

// Table is an in-memory keyed store with row locks. Lock holds a key until
// the locking transaction ends, and Put undoes itself when that transaction
// rolls back. Transactions must come from DB.
type Table[V any] struct {
	mu      sync.Mutex
	rows    map[string]V
	locks   map[string]*sync.Mutex
	holders map[string]*Tx
}

func NewTable[V any]() *Table[V] {
	return &Table[V]{
		rows:    map[string]V{},
		locks:   map[string]*sync.Mutex{},
		holders: map[string]*Tx{},
	}
}

// Lock blocks until tx holds key. It is reentrant for the same tx.
func (t *Table[V]) Lock(tx pgx.Tx, key string) {
	ftx := tx.(*Tx)

	t.mu.Lock()
	if t.holders[key] == ftx {
		t.mu.Unlock()
		return
	}
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	t.mu.Unlock()

	m.Lock()
	t.mu.Lock()
	t.holders[key] = ftx
	t.mu.Unlock()

	ftx.OnEnd(func() {
		t.mu.Lock()
		delete(t.holders, key)
		t.mu.Unlock()
		m.Unlock()
	})
}

// Get reads the committed or in-flight value of key without locking.
func (t *Table[V]) Get(key string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.rows[key]
	return v, ok
}

// Put locks key for tx and writes v.
func (t *Table[V]) Put(tx pgx.Tx, key string, v V) {
	t.Lock(tx, key)
	ftx := tx.(*Tx)

	t.mu.Lock()
	old, existed := t.rows[key]
	t.rows[key] = v
	t.mu.Unlock()

	ftx.OnEnd(func() {
		if !ftx.RolledBack() {
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if existed {
			t.rows[key] = old
		} else {
			delete(t.rows, key)
		}
	})
}

// Seed writes v outside any transaction.
func (t *Table[V]) Seed(key string, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[key] = v
}

// Values returns a snapshot of every row.
func (t *Table[V]) Values() []V {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]V, 0, len(t.rows))
	for _, v := range t.rows {
		out = append(out, v)
	}
	return out
}
