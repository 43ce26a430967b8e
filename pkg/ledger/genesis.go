// Copyright 2025 Ledgercore Contributors
//
// The genesis block (block 0) is created implicitly on first use (spec.md
// §4.1: "The first user-visible block is block 0 (genesis) and is created
// implicitly on first use"). It carries no signer — I4's temporal
// authorization check is explicitly exempted for genesis, and since no key
// need be registered before the very first append, I1/I3 are exempted too:
// the validator special-cases block 0 accordingly (see validator.go).

package ledger

import "time"

// genesisSignerPublicKey is the sentinel signer recorded on the genesis
// block. It never resolves to a real registry entry and is never checked.
const genesisSignerPublicKey = "GENESIS"

// genesisSignature is the sentinel signature on the genesis block. Genesis
// is exempt from signature verification (see validator.go), so this value
// is never cryptographically meaningful.
const genesisSignature = "GENESIS"

func buildGenesisBlock(now time.Time) *Block {
	b := &Block{
		BlockNumber:     0,
		PreviousHash:    GenesisPreviousHash,
		Timestamp:       now,
		Data:            "",
		SignerPublicKey: genesisSignerPublicKey,
		Signature:       genesisSignature,
	}
	b.Hash = b.ComputeHash()
	return b
}
