// Package refpredicate is a minimal reference Predicate interpreter used in
// tests and local development in place of a real predicate VM. Its bytecode
// format is deliberately small: a single opcode byte, optionally followed by
// operands, rather than anything resembling a general-purpose instruction
// set.
package refpredicate

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/essential-contributions/essential-node/foundation/hash"
	"github.com/essential-contributions/essential-node/foundation/validate"
)

// Opcodes recognised by Interpreter.Check.
const (
	// OpAccept always accepts.
	OpAccept byte = 0x00
	// OpReject always rejects.
	OpReject byte = 0x01
	// OpRequireKeyEquals rejects unless the value at the key encoded in the
	// remaining bytecode (a big-endian uint32 length followed by the key
	// bytes) equals predData[0].
	OpRequireKeyEquals byte = 0x02
)

// Interpreter is a validate.Predicate backed by the opcodes above.
type Interpreter struct{}

// Check implements validate.Predicate.
func (Interpreter) Check(ctx context.Context, bytecode []byte, contractAddr hash.Address, view validate.StateView, decVars, predData [][]byte) error {
	if len(bytecode) == 0 {
		return fmt.Errorf("refpredicate: empty bytecode")
	}

	switch op := bytecode[0]; op {
	case OpAccept:
		return nil
	case OpReject:
		return fmt.Errorf("refpredicate: rejected by OpReject")
	case OpRequireKeyEquals:
		key, err := decodeKey(bytecode[1:])
		if err != nil {
			return err
		}
		if len(predData) == 0 {
			return fmt.Errorf("refpredicate: OpRequireKeyEquals needs pred_data[0]")
		}
		value, ok, err := view.Get(ctx, contractAddr, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("refpredicate: key not found")
		}
		if !bytes.Equal(value, predData[0]) {
			return fmt.Errorf("refpredicate: value mismatch")
		}
		return nil
	default:
		return fmt.Errorf("refpredicate: unrecognised opcode %#x", op)
	}
}

func decodeKey(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("refpredicate: truncated key length")
	}
	n := binary.BigEndian.Uint32(b)
	if uint32(len(b)-4) < n {
		return nil, fmt.Errorf("refpredicate: truncated key")
	}
	return b[4 : 4+n], nil
}
