package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
)

func testKeypair(t *testing.T, seed byte) *Keypair {
	t.Helper()

	s := bytes.Repeat([]byte{seed}, ed25519.SeedSize)
	kp, err := KeypairFromBytes(ed25519.NewKeyFromSeed(s))
	if err != nil {
		t.Fatalf("derive keypair: %v", err)
	}
	return kp
}

func TestAppendShortVec(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}

	for _, tc := range cases {
		got := appendShortVec(nil, tc.n)
		if !bytes.Equal(got, tc.want) {
			t.Errorf("appendShortVec(%d) = %x, want %x", tc.n, got, tc.want)
		}
	}
}

func TestBuildTransferMessage(t *testing.T) {
	from := testKeypair(t, 1).Pubkey()
	to := testKeypair(t, 2).Pubkey()
	blockhash := base58.Encode(bytes.Repeat([]byte{7}, 32))

	msg, err := BuildTransferMessage(from, to, 123_456, blockhash)
	if err != nil {
		t.Fatalf("BuildTransferMessage: %v", err)
	}

	// Header: 1 required signature, 0 readonly signed, 1 readonly unsigned.
	if msg[0] != 1 || msg[1] != 0 || msg[2] != 1 {
		t.Errorf("header = %v, want [1 0 1]", msg[:3])
	}

	// Three account keys: sender, destination, system program.
	if msg[3] != 3 {
		t.Fatalf("account count = %d, want 3", msg[3])
	}
	keys := msg[4 : 4+3*32]
	fromRaw, _ := base58.Decode(from)
	toRaw, _ := base58.Decode(to)
	sysRaw, _ := base58.Decode(SystemProgramID)
	if !bytes.Equal(keys[0:32], fromRaw) {
		t.Error("account 0 is not the sender")
	}
	if !bytes.Equal(keys[32:64], toRaw) {
		t.Error("account 1 is not the destination")
	}
	if !bytes.Equal(keys[64:96], sysRaw) {
		t.Error("account 2 is not the system program")
	}

	// Blockhash follows the account keys.
	bhStart := 4 + 3*32
	if !bytes.Equal(msg[bhStart:bhStart+32], bytes.Repeat([]byte{7}, 32)) {
		t.Error("blockhash mismatch")
	}

	// One instruction: program index 2, accounts [0 1], 12 bytes of data.
	insStart := bhStart + 32
	ins := msg[insStart:]
	if ins[0] != 1 {
		t.Fatalf("instruction count = %d, want 1", ins[0])
	}
	if ins[1] != 2 {
		t.Errorf("program id index = %d, want 2", ins[1])
	}
	if ins[2] != 2 || ins[3] != 0 || ins[4] != 1 {
		t.Errorf("instruction accounts = %v, want [2 0 1]", ins[2:5])
	}
	if ins[5] != 12 {
		t.Fatalf("data length = %d, want 12", ins[5])
	}
	data := ins[6:18]
	if binary.LittleEndian.Uint32(data[0:4]) != 2 {
		t.Errorf("instruction index = %d, want 2 (transfer)", binary.LittleEndian.Uint32(data[0:4]))
	}
	if binary.LittleEndian.Uint64(data[4:12]) != 123_456 {
		t.Errorf("lamports = %d, want 123456", binary.LittleEndian.Uint64(data[4:12]))
	}
	if len(msg) != insStart+18 {
		t.Errorf("message length = %d, want %d", len(msg), insStart+18)
	}
}

func TestBuildTransferMessage_Rejections(t *testing.T) {
	from := testKeypair(t, 1).Pubkey()
	to := testKeypair(t, 2).Pubkey()
	blockhash := base58.Encode(bytes.Repeat([]byte{7}, 32))

	if _, err := BuildTransferMessage(from, to, 0, blockhash); err == nil {
		t.Error("expected an error for zero lamports")
	}
	if _, err := BuildTransferMessage(from, from, 1, blockhash); err == nil {
		t.Error("expected an error for transfer to self")
	}
	if _, err := BuildTransferMessage("bogus!!", to, 1, blockhash); err == nil {
		t.Error("expected an error for a bad sender address")
	}
}

func TestBuildMemoMessage(t *testing.T) {
	from := testKeypair(t, 1).Pubkey()
	blockhash := base58.Encode(bytes.Repeat([]byte{7}, 32))

	msg, err := BuildMemoMessage(from, []byte("hello"), blockhash)
	if err != nil {
		t.Fatalf("BuildMemoMessage: %v", err)
	}

	// Two account keys: signer and the memo program.
	if msg[3] != 2 {
		t.Fatalf("account count = %d, want 2", msg[3])
	}
	memoRaw, _ := base58.Decode(MemoProgramID)
	if !bytes.Equal(msg[4+32:4+64], memoRaw) {
		t.Error("account 1 is not the memo program")
	}

	// The memo payload terminates the message.
	if !bytes.HasSuffix(msg, []byte("hello")) {
		t.Error("memo payload missing from message")
	}
}

func TestBuildMemoMessage_Bounds(t *testing.T) {
	from := testKeypair(t, 1).Pubkey()
	blockhash := base58.Encode(bytes.Repeat([]byte{7}, 32))

	if _, err := BuildMemoMessage(from, nil, blockhash); err == nil {
		t.Error("expected an error for an empty memo")
	}

	long := bytes.Repeat([]byte{'x'}, MaxMemoBytes*2)
	msg, err := BuildMemoMessage(from, long, blockhash)
	if err != nil {
		t.Fatalf("BuildMemoMessage: %v", err)
	}
	if !bytes.HasSuffix(msg, bytes.Repeat([]byte{'x'}, MaxMemoBytes)) {
		t.Error("memo should be truncated to the cap")
	}
}

func TestSignMessage(t *testing.T) {
	kp := testKeypair(t, 1)
	to := testKeypair(t, 2).Pubkey()
	blockhash := base58.Encode(bytes.Repeat([]byte{7}, 32))

	msg, err := BuildTransferMessage(kp.Pubkey(), to, 1_000, blockhash)
	if err != nil {
		t.Fatalf("BuildTransferMessage: %v", err)
	}

	txBase64, sig := SignMessage(msg, kp)

	tx, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		t.Fatalf("decode transaction: %v", err)
	}

	// Wire layout: signature count, 64-byte signature, message.
	if tx[0] != 1 {
		t.Fatalf("signature count = %d, want 1", tx[0])
	}
	rawSig := tx[1:65]
	if !bytes.Equal(tx[65:], msg) {
		t.Error("message not carried verbatim after the signature")
	}

	sigB58, err := base58.Decode(sig)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if !bytes.Equal(rawSig, sigB58) {
		t.Error("returned signature differs from the wire signature")
	}

	pubRaw, _ := base58.Decode(kp.Pubkey())
	if !ed25519.Verify(ed25519.PublicKey(pubRaw), msg, rawSig) {
		t.Error("signature does not verify against the message")
	}
}
