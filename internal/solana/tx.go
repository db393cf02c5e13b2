package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// System program instruction indexes.
const sysTransferIndex = 2

// MaxMemoBytes caps memo payloads.
const MaxMemoBytes = 256

// appendShortVec appends the compact-u16 length prefix used by the legacy
// transaction wire format.
func appendShortVec(buf []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(buf, byte(n))
		}
		buf = append(buf, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

// appendAccount decodes a base58 address and appends its 32 raw bytes.
func appendAccount(buf []byte, addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode account %s: %w", addr, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("account %s must decode to 32 bytes, got %d", addr, len(raw))
	}
	return append(buf, raw...), nil
}

// BuildTransferMessage serializes a legacy message carrying one system
// program transfer of lamports from one wallet to another.
//
// Layout: header (3 bytes), compact array of account keys, recent
// blockhash (32 bytes), compact array of instructions.
func BuildTransferMessage(from, to string, lamports uint64, recentBlockhash string) ([]byte, error) {
	if lamports == 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}
	if from == to {
		return nil, fmt.Errorf("transfer to self")
	}

	// Header: 1 signer, 0 readonly signed, 1 readonly unsigned (the
	// system program).
	msg := []byte{1, 0, 1}

	// Account keys: fee payer/sender, destination, system program.
	msg = appendShortVec(msg, 3)
	var err error
	for _, addr := range []string{from, to, SystemProgramID} {
		if msg, err = appendAccount(msg, addr); err != nil {
			return nil, err
		}
	}

	if msg, err = appendAccount(msg, recentBlockhash); err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}

	// Instruction data: u32 LE instruction index, u64 LE lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], sysTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	msg = appendShortVec(msg, 1)       // one instruction
	msg = append(msg, 2)               // program id index: system program
	msg = appendShortVec(msg, 2)       // two instruction accounts
	msg = append(msg, 0, 1)            // sender, destination
	msg = appendShortVec(msg, len(data))
	msg = append(msg, data...)

	return msg, nil
}

// BuildMemoMessage serializes a legacy message carrying one memo
// instruction signed by from. Used for on-chain proof-of-action notes.
func BuildMemoMessage(from string, memo []byte, recentBlockhash string) ([]byte, error) {
	if len(memo) == 0 {
		return nil, fmt.Errorf("memo must not be empty")
	}
	if len(memo) > MaxMemoBytes {
		memo = memo[:MaxMemoBytes]
	}

	msg := []byte{1, 0, 1}

	msg = appendShortVec(msg, 2)
	var err error
	for _, addr := range []string{from, MemoProgramID} {
		if msg, err = appendAccount(msg, addr); err != nil {
			return nil, err
		}
	}

	if msg, err = appendAccount(msg, recentBlockhash); err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}

	msg = appendShortVec(msg, 1) // one instruction
	msg = append(msg, 1)         // program id index: memo program
	msg = appendShortVec(msg, 1) // one instruction account
	msg = append(msg, 0)         // signer
	msg = appendShortVec(msg, len(memo))
	msg = append(msg, memo...)

	return msg, nil
}

// SignMessage signs a serialized message and returns the base64 wire
// transaction along with the base58 signature.
func SignMessage(msg []byte, kp *Keypair) (txBase64, signature string) {
	sig := kp.Sign(msg)

	tx := appendShortVec(nil, 1) // one signature
	tx = append(tx, sig...)
	tx = append(tx, msg...)

	return base64.StdEncoding.EncodeToString(tx), base58.Encode(sig)
}
