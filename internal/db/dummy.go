package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"db_journal_migrator/internal/migration"
)

// Dummy is an in-memory client. Connections share one set of journal tables;
// writes made inside a transaction become visible to other connections only
// on commit. Scripts are recorded but not interpreted.
type Dummy struct {
	mu        sync.Mutex
	tables    map[string][]migration.JournalEntry
	executed  []string
	attempted []string
	last      time.Time
	closed    bool

	connectErr error

	// FailOn, when set, is consulted before each script runs; a non-nil
	// result fails the Exec call.
	FailOn func(script string) error
}

func NewDummy() *Dummy {
	return &Dummy{tables: map[string][]migration.JournalEntry{}}
}

func (d *Dummy) Name() string { return "dummy" }

func (d *Dummy) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Dummy) Connect(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connectErr != nil {
		return nil, migration.ConnectionError(d.connectErr)
	}
	if d.closed {
		return nil, migration.ConnectionError(fmt.Errorf("dummy client closed"))
	}
	return &dummyConn{d: d}, nil
}

// SetConnectErr makes Connect fail with err until it is reset with nil.
func (d *Dummy) SetConnectErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// Executed returns the scripts that were committed, in order.
func (d *Dummy) Executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.executed...)
}

// Attempted returns every script passed to Exec, committed or not.
func (d *Dummy) Attempted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.attempted...)
}

// Journal returns a copy of the committed entries of table.
func (d *Dummy) Journal(table string) []migration.JournalEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]migration.JournalEntry(nil), d.tables[table]...)
}

// Seed appends committed entries directly, bypassing Conn.
func (d *Dummy) Seed(table string, entries ...migration.JournalEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range entries {
		if e.Timestamp.After(d.last) {
			d.last = e.Timestamp
		}
		d.tables[table] = append(d.tables[table], e)
	}
}

// now returns a strictly increasing timestamp. Callers hold d.mu.
func (d *Dummy) now() time.Time {
	t := time.Now().UTC()
	if !t.After(d.last) {
		t = d.last.Add(time.Microsecond)
	}
	d.last = t
	return t
}

type dummyOp struct {
	table  string
	entry  *migration.JournalEntry
	create bool
	script string
}

type dummyConn struct {
	d       *Dummy
	closed  bool
	inTx    bool
	pending []dummyOp
}

func (c *dummyConn) check() error {
	if c.closed {
		return errConnUsed
	}
	return nil
}

func (c *dummyConn) Begin(context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.inTx {
		return errTxOpen
	}
	c.inTx = true
	c.pending = nil
	return nil
}

func (c *dummyConn) Commit(context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.inTx {
		return errNoTx
	}
	c.d.mu.Lock()
	for _, op := range c.pending {
		c.d.apply(op)
	}
	c.d.mu.Unlock()
	c.inTx = false
	c.pending = nil
	return nil
}

func (c *dummyConn) Rollback(context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.inTx {
		return errNoTx
	}
	c.inTx = false
	c.pending = nil
	return nil
}

// apply makes op durable. Callers hold d.mu.
func (d *Dummy) apply(op dummyOp) {
	switch {
	case op.create:
		if _, ok := d.tables[op.table]; !ok {
			d.tables[op.table] = nil
		}
	case op.entry != nil:
		d.tables[op.table] = append(d.tables[op.table], *op.entry)
	default:
		d.executed = append(d.executed, op.script)
	}
}

func (c *dummyConn) do(op dummyOp) {
	if c.inTx {
		c.pending = append(c.pending, op)
		return
	}
	c.d.mu.Lock()
	c.d.apply(op)
	c.d.mu.Unlock()
}

func (c *dummyConn) EnsureJournal(_ context.Context, table string) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := ValidateTableName(table); err != nil {
		return err
	}
	c.do(dummyOp{table: table, create: true})
	return nil
}

func (c *dummyConn) AppendJournal(_ context.Context, table string, rec JournalRecord) error {
	if err := c.check(); err != nil {
		return err
	}
	c.d.mu.Lock()
	_, exists := c.d.tables[table]
	ts := c.d.now()
	c.d.mu.Unlock()
	if !exists && !c.createdInTx(table) {
		return fmt.Errorf("append journal: table %s does not exist", table)
	}
	c.do(dummyOp{table: table, entry: &migration.JournalEntry{
		Timestamp:     ts,
		Operation:     rec.Operation,
		MigrationID:   rec.MigrationID,
		MigrationName: rec.MigrationName,
	}})
	return nil
}

func (c *dummyConn) createdInTx(table string) bool {
	for _, op := range c.pending {
		if op.create && op.table == table {
			return true
		}
	}
	return false
}

func (c *dummyConn) ReadJournal(_ context.Context, table string) ([]migration.JournalEntry, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.d.mu.Lock()
	committed, exists := c.d.tables[table]
	out := append([]migration.JournalEntry(nil), committed...)
	c.d.mu.Unlock()
	if !exists && !c.createdInTx(table) {
		return nil, fmt.Errorf("read journal: table %s does not exist", table)
	}
	for _, op := range c.pending {
		if op.entry != nil && op.table == table {
			out = append(out, *op.entry)
		}
	}
	return out, nil
}

func (c *dummyConn) Exec(_ context.Context, script string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.d.mu.Lock()
	c.d.attempted = append(c.d.attempted, script)
	fail := c.d.FailOn
	c.d.mu.Unlock()
	if fail != nil {
		if err := fail(script); err != nil {
			return err
		}
	}
	c.do(dummyOp{script: script})
	return nil
}

func (c *dummyConn) Close(context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.inTx = false
	c.pending = nil
	return nil
}
