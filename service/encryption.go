package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

// Encrypt converts value into a plaintext of type typ and has the relayer
// encrypt it. The type and the value range are checked before the relayer
// is called. The user address defaults to the connected wallet.
func (c *Client) Encrypt(ctx context.Context, value any, typ core.EncryptedType, opts core.EncryptOptions) (*core.EncryptedValue, error) {
	if _, err := core.ParseEncryptedType(string(typ)); err != nil {
		return nil, err
	}
	plaintext, err := core.ToPlaintext(value)
	if err != nil {
		return nil, err
	}
	if err := typ.CheckFits(plaintext); err != nil {
		return nil, err
	}

	started, err := c.begin(func(s *core.Snapshot) error {
		c.slots.encrypting++
		s.Encryption.IsEncrypting = true
		s.Encryption.Error = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	req := ports.EncryptRequest{
		Value:           plaintext,
		Type:            typ,
		ChainID:         started.Network.ChainID,
		ContractAddress: opts.ContractAddress,
		UserAddress:     opts.UserAddress,
		Metadata:        opts.Metadata,
	}
	if req.UserAddress == "" && started.Wallet != nil {
		req.UserAddress = started.Wallet.Address
	}

	encrypted, err := c.relayer.Encrypt(ctx, req)
	if err == nil && encrypted == nil {
		err = errors.New("relayer returned no value")
	}
	if err != nil {
		encErr := core.NewEncryptionError(fmt.Sprintf("failed to encrypt %s", typ), err)
		c.finish(started.SessionID, func(s *core.Snapshot) {
			c.slots.encrypting--
			s.Encryption.IsEncrypting = c.slots.encrypting > 0
			s.Encryption.Error = encErr
		})
		c.logger.Error("encryption failed",
			zap.String("session_id", started.SessionID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return nil, encErr
	}

	out := *encrypted
	if out.Type == "" {
		out.Type = typ
	}
	c.finish(started.SessionID, func(s *core.Snapshot) {
		c.slots.encrypting--
		s.Encryption.IsEncrypting = c.slots.encrypting > 0
		value := out
		s.Encryption.Value = &value
		s.Encryption.Error = nil
	})
	return &out, nil
}

// ResetEncryption clears the encryption result and error
func (c *Client) ResetEncryption() {
	c.store.Update(func(s *core.Snapshot) {
		s.Encryption = core.EncryptionState{IsEncrypting: c.slots.encrypting > 0}
	})
}
