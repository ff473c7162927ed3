package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/service"
)

// WalletDialer opens a wallet provider at url
type WalletDialer func(ctx context.Context, url string) (core.WalletProvider, error)

// Handlers contains the HTTP handlers of the gateway
type Handlers struct {
	client     *service.Client
	dialWallet WalletDialer
	logger     *zap.Logger
}

// NewHandlers creates new handlers
func NewHandlers(client *service.Client, dialWallet WalletDialer, logger *zap.Logger) *Handlers {
	return &Handlers{
		client:     client,
		dialWallet: dialWallet,
		logger:     logger,
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), newErrorResponse(err))
}

func (h *Handlers) invalid(c *gin.Context, err error) {
	h.fail(c, core.NewValidationError("Invalid request: "+err.Error()))
}

// bindOptionalJSON binds the body into obj, accepting an empty body
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Session returns the current snapshot
func (h *Handlers) Session(c *gin.Context) {
	c.JSON(http.StatusOK, newSnapshotResponse(h.client.Snapshot()))
}

// Events streams snapshots as server-sent events. Snapshots published
// while the client is slow are coalesced into the latest one.
func (h *Handlers) Events(c *gin.Context) {
	var (
		mu      sync.Mutex
		latest  core.Snapshot
		updates = make(chan struct{}, 1)
	)
	unsubscribe := h.client.Subscribe(func(s core.Snapshot) {
		mu.Lock()
		latest = s
		mu.Unlock()
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-updates:
			mu.Lock()
			snap := latest
			mu.Unlock()
			c.SSEvent("snapshot", newSnapshotResponse(snap))
			return true
		}
	})
}

type configRequest struct {
	ChainID uint64 `json:"chain_id"`
	RPCURL  string `json:"rpc_url"`
}

// Initialize handles session initialization
func (h *Handlers) Initialize(c *gin.Context) {
	var req configRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.invalid(c, err)
		return
	}

	if err := h.client.Initialize(c.Request.Context(), core.Config{ChainID: req.ChainID, RPCURL: req.RPCURL}); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSnapshotResponse(h.client.Snapshot()))
}

// Reinitialize handles re-initialization with a partial config
func (h *Handlers) Reinitialize(c *gin.Context) {
	var req configRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.invalid(c, err)
		return
	}

	if err := h.client.Reinitialize(c.Request.Context(), core.Config{ChainID: req.ChainID, RPCURL: req.RPCURL}); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSnapshotResponse(h.client.Snapshot()))
}

// Reset tears the session down
func (h *Handlers) Reset(c *gin.Context) {
	if err := h.client.Reset(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSnapshotResponse(h.client.Snapshot()))
}

// ConnectWallet connects the wallet at rpc_url, or the default wallet when
// the body names none
func (h *Handlers) ConnectWallet(c *gin.Context) {
	var req struct {
		RPCURL string `json:"rpc_url"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		h.invalid(c, err)
		return
	}

	var provider core.WalletProvider
	if req.RPCURL != "" {
		if h.dialWallet == nil {
			h.fail(c, core.NewValidationError("connecting a wallet by url is disabled"))
			return
		}
		p, err := h.dialWallet(c.Request.Context(), req.RPCURL)
		if err != nil {
			h.fail(c, core.NewNetworkError("failed to dial wallet", err))
			return
		}
		provider = p
	}

	info, err := h.client.ConnectWallet(c.Request.Context(), provider)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// DisconnectWallet clears the wallet
func (h *Handlers) DisconnectWallet(c *gin.Context) {
	h.client.DisconnectWallet()
	c.JSON(http.StatusOK, gin.H{"message": "Disconnected"})
}

// Encrypt handles encryption of a plaintext
func (h *Handlers) Encrypt(c *gin.Context) {
	var req struct {
		Value           json.RawMessage `json:"value" binding:"required"`
		Type            string          `json:"type" binding:"required"`
		ContractAddress string          `json:"contract_address"`
		UserAddress     string          `json:"user_address"`
		Metadata        map[string]any  `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	value, err := parsePlaintext(req.Value)
	if err != nil {
		h.fail(c, err)
		return
	}

	encrypted, err := h.client.Encrypt(c.Request.Context(), value, core.EncryptedType(req.Type), core.EncryptOptions{
		ContractAddress: req.ContractAddress,
		UserAddress:     req.UserAddress,
		Metadata:        req.Metadata,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newEncryptedValueResponse(encrypted))
}

// RequestDecryption submits a ciphertext. With wait set it answers with
// the plaintext, otherwise with the request id.
func (h *Handlers) RequestDecryption(c *gin.Context) {
	var req struct {
		Handle    string        `json:"handle"`
		Data      hexutil.Bytes `json:"data"`
		Wait      bool          `json:"wait"`
		TimeoutMS int64         `json:"timeout_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	ciphertext := core.Ciphertext{Handle: req.Handle, Data: req.Data}
	if !req.Wait {
		id, err := h.client.RequestDecryption(c.Request.Context(), ciphertext)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"request_id": id})
		return
	}

	result, err := h.client.Decrypt(c.Request.Context(), ciphertext, time.Duration(req.TimeoutMS)*time.Millisecond)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newDecryptionResultResponse(result))
}

// WaitForDecryption waits for the request named in the path
func (h *Handlers) WaitForDecryption(c *gin.Context) {
	var timeout time.Duration
	if v := c.Query("timeout_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			h.fail(c, core.NewValidationError("timeout_ms must be a non-negative integer"))
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	result, err := h.client.WaitForDecryption(c.Request.Context(), c.Param("id"), timeout)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newDecryptionResultResponse(result))
}

type contractCallRequest struct {
	Address      string            `json:"address" binding:"required"`
	ABI          json.RawMessage   `json:"abi" binding:"required"`
	FunctionName string            `json:"function_name" binding:"required"`
	Args         []json.RawMessage `json:"args"`
	GasLimit     uint64            `json:"gas_limit"`
	Value        string            `json:"value"`
}

// params converts the request into call params. The ABI may be given as a
// JSON array or as a string holding one.
func (r contractCallRequest) params() (core.ContractCallParams, error) {
	abiJSON := string(r.ABI)
	var s string
	if err := json.Unmarshal(r.ABI, &s); err == nil {
		abiJSON = s
	}

	args, err := decodeArgs(abiJSON, r.FunctionName, r.Args)
	if err != nil {
		return core.ContractCallParams{}, err
	}
	value, err := parseValue(r.Value)
	if err != nil {
		return core.ContractCallParams{}, err
	}

	return core.ContractCallParams{
		Address:      r.Address,
		ABI:          abiJSON,
		FunctionName: r.FunctionName,
		Args:         args,
		GasLimit:     r.GasLimit,
		Value:        value,
	}, nil
}

// ReadContract calls a view function
func (h *Handlers) ReadContract(c *gin.Context) {
	var req contractCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	params, err := req.params()
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.client.ReadContract(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"values": result.Values})
}

// WriteContract sends a transaction from the connected wallet
func (h *Handlers) WriteContract(c *gin.Context) {
	var req contractCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	params, err := req.params()
	if err != nil {
		h.fail(c, err)
		return
	}

	receipt, err := h.client.WriteContract(c.Request.Context(), params)
	if err != nil {
		if receipt != nil {
			// reverted transactions still carry their receipt
			_ = c.Error(err)
			resp := newErrorResponse(err)
			c.JSON(statusFor(err), gin.H{"code": resp.Code, "kind": resp.Kind, "error": resp.Error, "receipt": receipt})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}
