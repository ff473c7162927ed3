package http

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/fhevm/adapters/chain"
	"github.com/layer-3/fhevm/adapters/relayer"
	"github.com/layer-3/fhevm/adapters/tokenizer"
	"github.com/layer-3/fhevm/adapters/wallet"
	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/service"
)

const (
	testAccount  = "0x00000000000000000000000000000000000000a1"
	testContract = "0x00000000000000000000000000000000000000c0"
	counterABI   = `[{"type":"function","name":"count","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},{"type":"function","name":"increment","stateMutability":"nonpayable","inputs":[{"name":"by","type":"uint256"}],"outputs":[]}]`
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testGateway struct {
	client *service.Client
	chain  *chain.MemoryChain
	router *gin.Engine
	count  *atomic.Int64
}

func newTestGateway(t *testing.T, opts RouterOptions) *testGateway {
	t.Helper()

	r, err := relayer.NewMemoryRelayer(0)
	require.NoError(t, err)

	m := chain.NewMemoryChain()
	var count atomic.Int64
	m.Register(testContract, "count", func(ctx context.Context, from string, args []any) ([]any, error) {
		return []any{big.NewInt(count.Load())}, nil
	})
	m.Register(testContract, "increment", func(ctx context.Context, from string, args []any) ([]any, error) {
		count.Add(args[0].(*big.Int).Int64())
		return nil, nil
	})

	client, err := service.New(service.Options{
		Relayer:      r,
		Chain:        m,
		Network:      m,
		Wallet:       wallet.NewStaticProvider(testAccount, chain.DefaultChainID),
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Reset(context.Background()) })

	return &testGateway{client: client, chain: m, router: SetupRouter(client, opts), count: &count}
}

func (g *testGateway) do(t *testing.T, method, path, body string, header ...string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func TestSessionRoutes(t *testing.T) {
	require := require.New(t)
	g := newTestGateway(t, RouterOptions{})

	code, resp := g.do(t, http.MethodGet, "/session", "")
	require.Equal(http.StatusOK, code)
	require.Equal("uninitialized", resp["status"])
	require.Equal("disconnected", resp["wallet_status"])

	code, resp = g.do(t, http.MethodPost, "/encrypt", `{"value":1,"type":"euint8"}`)
	require.Equal(http.StatusServiceUnavailable, code)
	require.Equal(core.CodeNotInitialized, resp["code"])

	code, resp = g.do(t, http.MethodPost, "/session/reinitialize", `{}`)
	require.Equal(http.StatusServiceUnavailable, code)
	require.Equal(core.CodeNotInitialized, resp["code"])

	code, resp = g.do(t, http.MethodPost, "/session/initialize", `{"chain_id":31337}`)
	require.Equal(http.StatusOK, code)
	require.Equal("ready", resp["status"])
	require.Equal(map[string]any{"chain_id": float64(31337), "rpc_url": chain.DefaultRPCURL}, resp["network"])

	code, resp = g.do(t, http.MethodPost, "/session/reinitialize", `{"rpc_url":"http://other:8545"}`)
	require.Equal(http.StatusOK, code)
	require.Equal("http://other:8545", resp["network"].(map[string]any)["rpc_url"])

	session := resp["session_id"]
	code, resp = g.do(t, http.MethodPost, "/session/reset", "")
	require.Equal(http.StatusOK, code)
	require.Equal("uninitialized", resp["status"])
	require.NotEqual(session, resp["session_id"])
	require.Nil(resp["network"])
}

func TestInitializeRejectsMalformedBody(t *testing.T) {
	g := newTestGateway(t, RouterOptions{})

	code, resp := g.do(t, http.MethodPost, "/session/initialize", `{"chain_id":"one"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, core.CodeValidation, resp["code"])
	require.False(t, g.client.IsInitialized())
}

func TestEncryptDecryptRoutes(t *testing.T) {
	require := require.New(t)
	g := newTestGateway(t, RouterOptions{})

	code, _ := g.do(t, http.MethodPost, "/session/initialize", `{}`)
	require.Equal(http.StatusOK, code)

	code, resp := g.do(t, http.MethodPost, "/encrypt", `{"value":300,"type":"euint8"}`)
	require.Equal(http.StatusBadRequest, code)
	require.Equal(core.CodeValidation, resp["code"])

	code, resp = g.do(t, http.MethodPost, "/encrypt", `{"value":42,"type":"euint32"}`)
	require.Equal(http.StatusOK, code)
	require.Equal("euint32", resp["type"])
	handle := resp["handle"].(string)
	require.Len(handle, 66)

	code, resp = g.do(t, http.MethodPost, "/decrypt", `{"handle":"`+handle+`"}`)
	require.Equal(http.StatusAccepted, code)
	id := resp["request_id"].(string)

	code, resp = g.do(t, http.MethodGet, "/decrypt/"+id+"?timeout_ms=1000", "")
	require.Equal(http.StatusOK, code)
	require.Equal("42", resp["value"])
	require.Equal(id, resp["request_id"])

	code, resp = g.do(t, http.MethodPost, "/decrypt", `{"handle":"`+handle+`","wait":true,"timeout_ms":1000}`)
	require.Equal(http.StatusOK, code)
	require.Equal("42", resp["value"])

	code, resp = g.do(t, http.MethodGet, "/decrypt/missing", "")
	require.Equal(http.StatusNotFound, code)
	require.Equal(core.CodeUnknownRequest, resp["code"])

	code, _ = g.do(t, http.MethodGet, "/decrypt/"+id+"?timeout_ms=soon", "")
	require.Equal(http.StatusBadRequest, code)

	code, resp = g.do(t, http.MethodPost, "/encrypt", `{"value":"340282366920938463463374607431768211455","type":"euint128"}`)
	require.Equal(http.StatusOK, code)
	require.Equal("euint128", resp["type"])
}

func TestContractRoutes(t *testing.T) {
	require := require.New(t)
	g := newTestGateway(t, RouterOptions{})

	code, _ := g.do(t, http.MethodPost, "/session/initialize", `{}`)
	require.Equal(http.StatusOK, code)

	write := `{"address":"` + testContract + `","abi":` + counterABI + `,"function_name":"increment","args":[5]}`
	code, resp := g.do(t, http.MethodPost, "/contract/write", write)
	require.Equal(http.StatusPreconditionFailed, code)
	require.Equal(core.CodeWalletRequired, resp["code"])

	code, resp = g.do(t, http.MethodPost, "/wallet/connect", "")
	require.Equal(http.StatusOK, code)
	require.True(strings.EqualFold(testAccount, resp["address"].(string)))

	code, resp = g.do(t, http.MethodPost, "/contract/write", write)
	require.Equal(http.StatusOK, code)
	require.Equal(float64(core.ReceiptSuccessful), resp["status"])
	require.Equal(int64(5), g.count.Load())

	// the abi may also be passed as a string
	abiString, err := json.Marshal(counterABI)
	require.NoError(err)
	code, resp = g.do(t, http.MethodPost, "/contract/read", `{"address":"`+testContract+`","abi":`+string(abiString)+`,"function_name":"count"}`)
	require.Equal(http.StatusOK, code)
	require.Equal([]any{float64(5)}, resp["values"])

	code, resp = g.do(t, http.MethodPost, "/contract/write", `{"address":"`+testContract+`","abi":`+counterABI+`,"function_name":"increment","args":[-1]}`)
	require.Equal(http.StatusBadRequest, code)
	require.Equal(core.CodeValidation, resp["code"])

	g.chain.RevertOn(testContract, "increment")
	code, resp = g.do(t, http.MethodPost, "/contract/write", write)
	require.Equal(http.StatusUnprocessableEntity, code)
	require.Equal(core.CodeTransactionRevert, resp["code"])
	require.NotNil(resp["receipt"])

	code, _ = g.do(t, http.MethodPost, "/wallet/disconnect", "")
	require.Equal(http.StatusOK, code)
	require.False(g.client.Snapshot().IsConnected())
}

func TestConnectWalletByURL(t *testing.T) {
	require := require.New(t)

	var dialed string
	g := newTestGateway(t, RouterOptions{
		DialWallet: func(ctx context.Context, url string) (core.WalletProvider, error) {
			dialed = url
			return wallet.NewStaticProvider("0x00000000000000000000000000000000000000b2", 31337), nil
		},
	})
	code, _ := g.do(t, http.MethodPost, "/session/initialize", `{}`)
	require.Equal(http.StatusOK, code)

	code, resp := g.do(t, http.MethodPost, "/wallet/connect", `{"rpc_url":"http://wallet:8545"}`)
	require.Equal(http.StatusOK, code)
	require.Equal("http://wallet:8545", dialed)
	require.True(strings.EqualFold("0x00000000000000000000000000000000000000b2", resp["address"].(string)))

	plain := newTestGateway(t, RouterOptions{})
	code, _ = plain.do(t, http.MethodPost, "/session/initialize", `{}`)
	require.Equal(http.StatusOK, code)
	code, resp = plain.do(t, http.MethodPost, "/wallet/connect", `{"rpc_url":"http://wallet:8545"}`)
	require.Equal(http.StatusBadRequest, code)
	require.Equal(core.CodeValidation, resp["code"])
}

func TestAuthMiddleware(t *testing.T) {
	require := require.New(t)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	tok := tokenizer.NewJWTTokenizer(key)

	g := newTestGateway(t, RouterOptions{Tokenizer: tok, Audience: tokenizer.AudienceGateway})

	code, resp := g.do(t, http.MethodGet, "/session", "")
	require.Equal(http.StatusUnauthorized, code)
	require.Equal("Invalid authorization header", resp["error"])

	valid, err := tok.Issue(tokenizer.AudienceGateway, "operator", time.Minute)
	require.NoError(err)
	code, _ = g.do(t, http.MethodGet, "/session", "", "Authorization", "Bearer "+valid)
	require.Equal(http.StatusOK, code)

	relayerToken, err := tok.Issue(tokenizer.AudienceRelayer, "operator", time.Minute)
	require.NoError(err)
	code, resp = g.do(t, http.MethodGet, "/session", "", "Authorization", "Bearer "+relayerToken)
	require.Equal(http.StatusUnauthorized, code)
	require.Equal("Invalid token", resp["error"])

	expired, err := tok.Issue(tokenizer.AudienceGateway, "operator", -time.Minute)
	require.NoError(err)
	code, resp = g.do(t, http.MethodGet, "/session", "", "Authorization", "Bearer "+expired)
	require.Equal(http.StatusUnauthorized, code)
	require.Equal("Token expired", resp["error"])
}

func TestSessionEventsStream(t *testing.T) {
	require := require.New(t)

	g := newTestGateway(t, RouterOptions{})
	server := httptest.NewServer(g.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/session/events", nil)
	require.NoError(err)
	resp, err := server.Client().Do(req)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	events := make(chan map[string]any, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var snap map[string]any
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &snap) == nil {
				events <- snap
			}
		}
	}()

	first := <-events
	require.Equal("uninitialized", first["status"])

	initResp, err := http.Post(server.URL+"/session/initialize", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(err)
	initResp.Body.Close()
	require.Equal(http.StatusOK, initResp.StatusCode)

	for snap := range events {
		if snap["status"] == "ready" {
			cancel()
			return
		}
	}
	t.Fatal("stream ended before the session became ready")
}
