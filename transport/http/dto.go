package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/layer-3/fhevm/core"
)

type errorResponse struct {
	Code  string    `json:"code"`
	Kind  core.Kind `json:"kind,omitempty"`
	Error string    `json:"error"`
}

func newErrorResponse(err error) *errorResponse {
	if err == nil {
		return nil
	}
	return &errorResponse{Code: core.CodeOf(err), Kind: core.KindOf(err), Error: err.Error()}
}

// statusFor maps an error returned by the client to an HTTP status
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch core.CodeOf(err) {
	case core.CodeValidation:
		return http.StatusBadRequest
	case core.CodeNotInitialized:
		return http.StatusServiceUnavailable
	case core.CodeLifecycleBusy:
		return http.StatusConflict
	case core.CodeWalletRequired:
		return http.StatusPreconditionFailed
	case core.CodeUnknownRequest:
		return http.StatusNotFound
	case core.CodeDecryptionTimeout:
		return http.StatusGatewayTimeout
	case core.CodeTransactionRevert:
		return http.StatusUnprocessableEntity
	case core.CodeInitialization, core.CodeNetwork, core.CodeEncryption, core.CodeDecryption, core.CodeContractExecution:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type encryptedValueResponse struct {
	Type     core.EncryptedType `json:"type"`
	Handle   string             `json:"handle,omitempty"`
	Data     hexutil.Bytes      `json:"data"`
	Metadata map[string]any     `json:"metadata,omitempty"`
}

func newEncryptedValueResponse(v *core.EncryptedValue) *encryptedValueResponse {
	if v == nil {
		return nil
	}
	return &encryptedValueResponse{Type: v.Type, Handle: v.Handle, Data: v.Data, Metadata: v.Metadata}
}

type decryptionResultResponse struct {
	RequestID string             `json:"request_id"`
	Type      core.EncryptedType `json:"type"`
	Value     string             `json:"value"`
}

func newDecryptionResultResponse(r *core.DecryptionResult) *decryptionResultResponse {
	if r == nil {
		return nil
	}
	out := &decryptionResultResponse{RequestID: r.RequestID, Type: r.Type, Value: "0"}
	if r.Value != nil {
		out.Value = r.Value.Dec()
	}
	return out
}

type encryptionStateResponse struct {
	IsEncrypting bool                    `json:"is_encrypting"`
	Value        *encryptedValueResponse `json:"value,omitempty"`
	Error        *errorResponse          `json:"error,omitempty"`
}

type decryptionStateResponse struct {
	IsDecrypting bool                      `json:"is_decrypting"`
	Pending      int                       `json:"pending"`
	Result       *decryptionResultResponse `json:"result,omitempty"`
	Error        *errorResponse            `json:"error,omitempty"`
}

type contractStateResponse struct {
	IsReading bool                     `json:"is_reading"`
	IsWriting bool                     `json:"is_writing"`
	ReadData  []any                    `json:"read_data,omitempty"`
	Receipt   *core.TransactionReceipt `json:"receipt,omitempty"`
	Error     *errorResponse           `json:"error,omitempty"`
}

type snapshotResponse struct {
	Version      uint64            `json:"version"`
	SessionID    string            `json:"session_id"`
	Status       core.Status       `json:"status"`
	Config       core.Config       `json:"config"`
	CreatedAt    time.Time         `json:"created_at"`
	InitError    *errorResponse    `json:"init_error,omitempty"`
	Network      *core.NetworkInfo `json:"network,omitempty"`
	Wallet       *core.WalletInfo  `json:"wallet,omitempty"`
	WalletStatus core.WalletStatus `json:"wallet_status"`
	WalletError  *errorResponse    `json:"wallet_error,omitempty"`

	Encryption encryptionStateResponse `json:"encryption"`
	Decryption decryptionStateResponse `json:"decryption"`
	Contract   contractStateResponse   `json:"contract"`
}

func newSnapshotResponse(s core.Snapshot) snapshotResponse {
	out := snapshotResponse{
		Version:      s.Version,
		SessionID:    s.SessionID,
		Status:       s.Status,
		Config:       s.Config,
		CreatedAt:    s.CreatedAt,
		InitError:    newErrorResponse(s.InitError),
		Network:      s.Network,
		Wallet:       s.Wallet,
		WalletStatus: s.WalletStatus,
		WalletError:  newErrorResponse(s.WalletError),
		Encryption: encryptionStateResponse{
			IsEncrypting: s.Encryption.IsEncrypting,
			Value:        newEncryptedValueResponse(s.Encryption.Value),
			Error:        newErrorResponse(s.Encryption.Error),
		},
		Decryption: decryptionStateResponse{
			IsDecrypting: s.Decryption.IsDecrypting,
			Pending:      s.Decryption.Pending,
			Result:       newDecryptionResultResponse(s.Decryption.Result),
			Error:        newErrorResponse(s.Decryption.Error),
		},
		Contract: contractStateResponse{
			IsReading: s.Contract.IsReading,
			IsWriting: s.Contract.IsWriting,
			Receipt:   s.Contract.Receipt,
			Error:     newErrorResponse(s.Contract.Error),
		},
	}
	if s.Contract.ReadData != nil {
		out.Contract.ReadData = s.Contract.ReadData.Values
	}
	return out
}
