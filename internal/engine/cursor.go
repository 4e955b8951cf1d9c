package engine

import (
	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
	"github.com/roach88/asyncdb/internal/store"
)

// Cursor walks an object store or index one record at a time. Every step
// re-reads from storage strictly past the previous position, so records
// written by earlier requests of the same transaction are observed.
// Loop goroutine only.
type Cursor struct {
	req       *Request
	scan      queryir.Scan
	direction queryir.Direction

	key        record.Key
	primaryKey record.Key
	value      record.Object
	gotValue   bool
}

// Key returns the current key: the index key for index cursors.
func (c *Cursor) Key() record.Key { return c.key }

// PrimaryKey returns the current record's primary key.
func (c *Cursor) PrimaryKey() record.Key { return c.primaryKey }

// Value returns the current record.
func (c *Cursor) Value() record.Object { return c.value }

// Direction returns the iteration direction.
func (c *Cursor) Direction() queryir.Direction { return c.direction }

// Request returns the request whose OnSuccess receives each step.
func (c *Cursor) Request() *Request { return c.req }

// Continue advances to the next record. The cursor's request fires again.
func (c *Cursor) Continue() error {
	tx := c.req.tx
	if err := tx.checkActive(); err != nil {
		return err
	}
	if !c.gotValue {
		return newError(InvalidStateError, "the cursor is being iterated or has iterated past its end")
	}
	c.gotValue = false
	tx.requeue(c.req)
	return nil
}

// step returns the request body: read one row past the current position.
func (c *Cursor) step(f *Factory) func(*store.Tx) (any, *Error) {
	return func(t *store.Tx) (any, *Error) {
		scan := c.scan
		scan.Limit = 1
		rows, err := t.Scan(f.ctx, scan)
		if err != nil {
			return nil, storeError(err)
		}
		if len(rows) == 0 {
			c.key, c.primaryKey, c.value = nil, nil, nil
			return (*Cursor)(nil), nil
		}
		row := rows[0]
		pos := row.Position
		c.scan.After = &pos
		c.key, c.primaryKey, c.value = row.Key, row.PrimaryKey, row.Value
		c.gotValue = true
		return c, nil
	}
}
