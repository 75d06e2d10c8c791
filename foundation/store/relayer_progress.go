package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/hash"
)

// RelayerCursor is a relayer stream's durable resume point.
type RelayerCursor struct {
	Stream       string
	Cursor       hash.Address
	HasCursor    bool
	CursorNumber uint64
}

// GetRelayerProgress reads the durable cursor for the named stream
// ("blocks" or "contracts"), if one has been recorded.
func (s *Store) GetRelayerProgress(ctx context.Context, stream string) (RelayerCursor, bool, error) {
	var rc RelayerCursor
	found := false
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var cursorBytes []byte
		err := conn.QueryRowContext(ctx, `SELECT cursor, cursor_number FROM relayer_progress WHERE stream = ?`, stream).Scan(&cursorBytes, &rc.CursorNumber)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		rc.Stream = stream
		if cursorBytes != nil {
			addr, err := hash.FromBytes(cursorBytes)
			if err != nil {
				return err
			}
			rc.Cursor = addr
			rc.HasCursor = true
		}
		found = true
		return nil
	})
	return rc, found, err
}

// SetRelayerProgress records the durable cursor for the named stream.
func (s *Store) SetRelayerProgress(ctx context.Context, stream string, cursor hash.Address, hasCursor bool, cursorNumber uint64) error {
	var cursorBytes []byte
	if hasCursor {
		cursorBytes = cursor.Bytes()
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO relayer_progress (stream, cursor, cursor_number) VALUES (?, ?, ?)
			ON CONFLICT (stream) DO UPDATE SET cursor = excluded.cursor, cursor_number = excluded.cursor_number`,
			stream, cursorBytes, cursorNumber,
		)
		if err != nil {
			return errs.New(errs.Storage, "updating relayer_progress", err)
		}
		return nil
	})
}
