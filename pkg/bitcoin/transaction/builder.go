package transaction

import (
	"fmt"

	"github.com/flowforge/strategy-engine/pkg/bitcoin/address"
	"github.com/flowforge/strategy-engine/pkg/bitcoin/ecc"
)

// UTXO represents an unspent transaction output
type UTXO struct {
	TxHash       []byte // Transaction hash
	OutputIndex  uint32 // Output index
	Amount       uint64 // Amount in satoshis
	ScriptPubKey []byte // Script public key
	Address      string // Address (for convenience)
}

// TransactionBuilder helps build Bitcoin transactions
type TransactionBuilder struct {
	version  uint32
	inputs   []*TxIn
	outputs  []*TxOut
	locktime uint32
	utxos    []*UTXO
	fee      uint64
}

// NewTransactionBuilder creates a new transaction builder
func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{
		version:  1,
		inputs:   []*TxIn{},
		outputs:  []*TxOut{},
		locktime: 0,
		utxos:    []*UTXO{},
		fee:      0,
	}
}

// SetVersion sets the transaction version
func (tb *TransactionBuilder) SetVersion(version uint32) *TransactionBuilder {
	tb.version = version
	return tb
}

// SetLocktime sets the transaction locktime
func (tb *TransactionBuilder) SetLocktime(locktime uint32) *TransactionBuilder {
	tb.locktime = locktime
	return tb
}

// AddInput adds an input to the transaction
func (tb *TransactionBuilder) AddInput(txHash []byte, outputIndex uint32, utxo *UTXO) *TransactionBuilder {
	input := NewTxIn(txHash, outputIndex)
	tb.inputs = append(tb.inputs, input)
	
	if utxo != nil {
		tb.utxos = append(tb.utxos, utxo)
	}
	
	return tb
}

// AddOutput adds an output to the transaction
func (tb *TransactionBuilder) AddOutput(addressStr string, amount uint64) error {
	// Parse address to get script public key
	addr, err := address.ParseAddress(addressStr)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	scriptPubKey := addr.ScriptPubKey()
	output := NewTxOut(amount, scriptPubKey)
	tb.outputs = append(tb.outputs, output)

	return nil
}

// AddP2PKHOutput adds a P2PKH output
func (tb *TransactionBuilder) AddP2PKHOutput(publicKey *ecc.Point, amount uint64, testnet bool) *TransactionBuilder {
	addr := address.NewP2PKHAddress(publicKey, testnet)
	scriptPubKey := addr.ScriptPubKey()
	output := NewTxOut(amount, scriptPubKey)
	tb.outputs = append(tb.outputs, output)
	
	return tb
}

// SetFee sets the transaction fee
func (tb *TransactionBuilder) SetFee(fee uint64) *TransactionBuilder {
	tb.fee = fee
	return tb
}

// CalculateFee calculates the transaction fee based on size and fee rate
func (tb *TransactionBuilder) CalculateFee(feePerByte uint64) uint64 {
	// Estimate transaction size
	estimatedSize := tb.EstimateSize()
	return uint64(estimatedSize) * feePerByte
}

// EstimateSize estimates the transaction size in bytes
func (tb *TransactionBuilder) EstimateSize() int {
	// Base size: version (4) + input count (1) + output count (1) + locktime (4)
	size := 4 + 1 + 1 + 4

	// Add input sizes
	for range tb.inputs {
		// Each input: prev_hash (32) + prev_index (4) + script_sig_len (1) + script_sig (~107 for P2PKH) + sequence (4)
		size += 32 + 4 + 1 + 107 + 4 // ~148 bytes per P2PKH input
	}

	// Add output sizes
	for _, output := range tb.outputs {
		// Each output: amount (8) + script_len (1) + script
		size += 8 + 1 + len(output.ScriptPubKey)
	}

	return size
}

// Build builds the transaction
func (tb *TransactionBuilder) Build() (*Transaction, error) {
	if len(tb.inputs) == 0 {
		return nil, fmt.Errorf("transaction must have at least one input")
	}

	if len(tb.outputs) == 0 {
		return nil, fmt.Errorf("transaction must have at least one output")
	}

	// Check if we have enough UTXOs for inputs
	if len(tb.utxos) != len(tb.inputs) {
		return nil, fmt.Errorf("number of UTXOs must match number of inputs")
	}

	// Calculate total input and output amounts
	totalInput := uint64(0)
	for _, utxo := range tb.utxos {
		totalInput += utxo.Amount
	}

	totalOutput := uint64(0)
	for _, output := range tb.outputs {
		totalOutput += output.Amount
	}

	// Check if we have enough funds
	if totalInput < totalOutput+tb.fee {
		return nil, fmt.Errorf("insufficient funds: input=%d, output=%d, fee=%d", 
			totalInput, totalOutput, tb.fee)
	}

	// Create transaction
	tx := NewTransaction(tb.version, tb.inputs, tb.outputs, tb.locktime)
	
	return tx, nil
}

