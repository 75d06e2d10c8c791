package store

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/hash"
)

// InsertContract inserts a contract and its predicates, linking each
// predicate to it via contract_predicate. Predicates already known by
// content hash (deployed in an earlier contract) are reused rather than
// duplicated. Replaying an already-stored contract is a no-op.
func (s *Store) InsertContract(ctx context.Context, c Contract) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM contract WHERE content_hash = ?`, c.ContentHash.Bytes()).Scan(&existingID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.Storage, "checking for existing contract", err)
		}

		// A nil Salt is stored as an empty blob; the column is NOT NULL.
		salt := c.Salt
		if salt == nil {
			salt = []byte{}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO contract (content_hash, salt, created_at_seconds, created_at_nanos)
			VALUES (?, ?, ?, ?)`,
			c.ContentHash.Bytes(), salt, c.CreatedAt.Secs, c.CreatedAt.Nanos,
		)
		if err != nil {
			return errs.New(errs.Storage, "inserting contract", err)
		}
		contractID, err := res.LastInsertId()
		if err != nil {
			return errs.New(errs.Storage, "reading inserted contract id", err)
		}

		for _, p := range c.Predicates {
			predicateID, err := upsertPredicate(ctx, tx, p)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO contract_predicate (contract_id, predicate_id)
				VALUES (?, ?)`,
				contractID, predicateID,
			); err != nil {
				return errs.New(errs.Storage, "inserting contract_predicate", err)
			}
		}

		return nil
	})
}

func upsertPredicate(ctx context.Context, tx *sql.Tx, p Predicate) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO predicate (content_hash, predicate) VALUES (?, ?)`,
		p.ContentHash.Bytes(), p.Bytecode,
	)
	if err != nil {
		return 0, errs.New(errs.Storage, "inserting predicate", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, errs.New(errs.Storage, "reading inserted predicate id", err)
		}
		return id, nil
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM predicate WHERE content_hash = ?`, p.ContentHash.Bytes()).Scan(&id); err != nil {
		return 0, errs.New(errs.Storage, "looking up predicate", err)
	}
	return id, nil
}

// GetContract fetches a contract and its predicates by content address.
func (s *Store) GetContract(ctx context.Context, addr hash.Address) (Contract, bool, error) {
	var c Contract
	found := false
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var contractID int64
		var salt []byte
		var secs, nanos uint64
		err := conn.QueryRowContext(ctx, `
			SELECT id, salt, created_at_seconds, created_at_nanos FROM contract WHERE content_hash = ?`,
			addr.Bytes(),
		).Scan(&contractID, &salt, &secs, &nanos)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		c = Contract{
			ID:          contractID,
			ContentHash: addr,
			Salt:        salt,
			CreatedAt:   Timestamp{Secs: secs, Nanos: uint32(nanos)},
		}

		rows, err := conn.QueryContext(ctx, `
			SELECT p.id, p.content_hash, p.predicate
			FROM predicate p
			JOIN contract_predicate cp ON cp.predicate_id = p.id
			WHERE cp.contract_id = ?
			ORDER BY p.id ASC`,
			contractID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var pid int64
			var ph []byte
			var bytecode []byte
			if err := rows.Scan(&pid, &ph, &bytecode); err != nil {
				return err
			}
			pa, err := hash.FromBytes(ph)
			if err != nil {
				return err
			}
			c.Predicates = append(c.Predicates, Predicate{ID: pid, ContentHash: pa, Bytecode: bytecode})
		}
		return rows.Err()
	})
	if err != nil {
		return Contract{}, false, err
	}
	return c, found, nil
}

// ListContracts lists contracts created in [startSecs, endSecs) (seconds
// resolution), ordered by (created_at_seconds, created_at_nanos,
// content_hash), paginated. An endSecs above math.MaxInt64 is treated as
// math.MaxInt64.
func (s *Store) ListContracts(ctx context.Context, startSecs, endSecs uint64, limit, offset int64) ([]Contract, error) {
	if endSecs > math.MaxInt64 {
		endSecs = math.MaxInt64
	}
	if startSecs > endSecs {
		startSecs = endSecs
	}
	var addrs []hash.Address
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT content_hash FROM contract
			WHERE created_at_seconds >= ? AND created_at_seconds < ?
			ORDER BY created_at_seconds ASC, created_at_nanos ASC, content_hash ASC
			LIMIT ? OFFSET ?`,
			startSecs, endSecs, limit, offset,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var b []byte
			if err := rows.Scan(&b); err != nil {
				return err
			}
			addr, err := hash.FromBytes(b)
			if err != nil {
				return err
			}
			addrs = append(addrs, addr)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	contracts := make([]Contract, 0, len(addrs))
	for _, addr := range addrs {
		c, ok, err := s.GetContract(ctx, addr)
		if err != nil {
			return nil, err
		}
		if ok {
			contracts = append(contracts, c)
		}
	}
	return contracts, nil
}
