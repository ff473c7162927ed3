package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/core"
)

// ReadContract calls a view function. Identical reads in flight at the same
// time share one chain call.
func (c *Client) ReadContract(ctx context.Context, params core.ContractCallParams) (*core.ReadResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	started, err := c.begin(func(s *core.Snapshot) error {
		c.slots.reading++
		s.Contract.IsReading = true
		s.Contract.Error = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := c.call(ctx, params)

	c.finish(started.SessionID, func(s *core.Snapshot) {
		c.slots.reading--
		s.Contract.IsReading = c.slots.reading > 0
		if err != nil {
			s.Contract.Error = err
			return
		}
		s.Contract.ReadData = result
		s.Contract.Error = nil
	})
	if err != nil {
		c.logger.Error("contract read failed",
			zap.String("address", params.Address),
			zap.String("function", params.FunctionName),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, params core.ContractCallParams) (*core.ReadResult, error) {
	v, err, _ := c.calls.Do(callKey(params), func() (any, error) {
		values, err := c.chain.Call(ctx, params)
		if err != nil {
			return nil, core.NewContractExecutionError(fmt.Sprintf("call to %s failed", params.FunctionName), err)
		}
		return &core.ReadResult{Values: values}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.ReadResult), nil
}

func callKey(params core.ContractCallParams) string {
	abiHash := crypto.Keccak256Hash([]byte(params.ABI))
	return fmt.Sprintf("%s/%s/%s/%v",
		strings.ToLower(params.Address), abiHash.Hex(), params.FunctionName, params.Args)
}

// ExecuteContract sends a transaction from the connected wallet and
// returns its receipt. A reverted receipt is returned together with a
// TRANSACTION_REVERTED error.
func (c *Client) ExecuteContract(ctx context.Context, params core.ContractCallParams) (*core.TransactionReceipt, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	started, err := c.begin(func(s *core.Snapshot) error {
		if !s.IsConnected() {
			return core.ErrWalletRequired
		}
		c.slots.writing++
		s.Contract.IsWriting = true
		s.Contract.Error = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt, err := c.chain.Transact(ctx, *started.Wallet, params)
	if err != nil {
		err = core.NewContractExecutionError(fmt.Sprintf("transaction %s failed", params.FunctionName), err)
		receipt = nil
	} else if receipt == nil {
		err = core.NewContractExecutionError(fmt.Sprintf("transaction %s returned no receipt", params.FunctionName), nil)
	} else if receipt.Status == core.ReceiptFailed {
		err = &core.Error{
			Kind:    core.KindContractExecution,
			Code:    core.CodeTransactionRevert,
			Message: fmt.Sprintf("transaction %s reverted", receipt.Hash),
		}
	}

	c.finish(started.SessionID, func(s *core.Snapshot) {
		c.slots.writing--
		s.Contract.IsWriting = c.slots.writing > 0
		if receipt != nil {
			r := *receipt
			s.Contract.Receipt = &r
		}
		s.Contract.Error = err
	})

	if err != nil {
		c.logger.Error("contract write failed",
			zap.String("address", params.Address),
			zap.String("function", params.FunctionName),
			zap.Error(err),
		)
		return receipt, err
	}

	c.logger.Info("transaction mined",
		zap.String("hash", receipt.Hash),
		zap.Uint64("block", receipt.BlockNumber),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}

// WriteContract is ExecuteContract
func (c *Client) WriteContract(ctx context.Context, params core.ContractCallParams) (*core.TransactionReceipt, error) {
	return c.ExecuteContract(ctx, params)
}

// ResetContracts clears the contract results and error
func (c *Client) ResetContracts() {
	c.store.Update(func(s *core.Snapshot) {
		s.Contract = core.ContractState{
			IsReading: c.slots.reading > 0,
			IsWriting: c.slots.writing > 0,
		}
	})
}
