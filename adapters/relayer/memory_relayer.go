package relayer

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

var (
	ErrUnknownCiphertext = errors.New("unknown ciphertext")
	ErrUnknownRequest    = errors.New("unknown decryption request")
)

type memoryDecryption struct {
	typ     core.EncryptedType
	value   *uint256.Int
	readyAt time.Time
}

// MemoryRelayer is an in-process relayer. Values are sealed with
// XChaCha20-Poly1305 under a random key instead of being FHE encrypted,
// which keeps round trips observable in tests and in dev mode.
type MemoryRelayer struct {
	aead  cipher.AEAD
	delay time.Duration

	mu          sync.Mutex
	ciphertexts map[string][]byte
	requests    map[string]*memoryDecryption
	subscribers map[chan string]struct{}
}

// NewMemoryRelayer creates a relayer whose decryptions become ready after
// delay
func NewMemoryRelayer(delay time.Duration) (*MemoryRelayer, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return &MemoryRelayer{
		aead:        aead,
		delay:       delay,
		ciphertexts: make(map[string][]byte),
		requests:    make(map[string]*memoryDecryption),
		subscribers: make(map[chan string]struct{}),
	}, nil
}

// Encrypt seals req.Value. The handle is the keccak256 hash of the sealed
// bytes.
func (r *MemoryRelayer) Encrypt(ctx context.Context, req ports.EncryptRequest) (*core.EncryptedValue, error) {
	if err := req.Type.CheckFits(req.Value); err != nil {
		return nil, err
	}

	plaintext := encodePlaintext(req.Type, req.Value)
	nonce := make([]byte, r.aead.NonceSize(), r.aead.NonceSize()+len(plaintext)+r.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	data := r.aead.Seal(nonce, nonce, plaintext, nil)
	handle := crypto.Keccak256Hash(data).Hex()

	r.mu.Lock()
	r.ciphertexts[handle] = data
	r.mu.Unlock()

	return &core.EncryptedValue{
		Type:     req.Type,
		Data:     data,
		Handle:   handle,
		Metadata: req.Metadata,
	}, nil
}

// SubmitDecryption opens the referenced ciphertext and schedules its
// plaintext to become ready
func (r *MemoryRelayer) SubmitDecryption(ctx context.Context, ciphertext core.Ciphertext) (string, error) {
	data := ciphertext.Data

	r.mu.Lock()
	if len(data) == 0 {
		data = r.ciphertexts[ciphertext.Handle]
	}
	r.mu.Unlock()
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownCiphertext, ciphertext.Handle)
	}

	typ, value, err := r.open(data)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	r.mu.Lock()
	r.requests[id] = &memoryDecryption{typ: typ, value: value, readyAt: time.Now().Add(r.delay)}
	r.mu.Unlock()

	time.AfterFunc(r.delay, func() { r.notify(id) })
	return id, nil
}

// PollDecryption reports whether the plaintext of relayerID is ready
func (r *MemoryRelayer) PollDecryption(ctx context.Context, relayerID string) (*ports.DecryptionPoll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[relayerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, relayerID)
	}
	if time.Now().Before(req.readyAt) {
		return &ports.DecryptionPoll{Status: ports.PollPending}, nil
	}
	return &ports.DecryptionPoll{
		Status: ports.PollReady,
		Type:   req.typ,
		Value:  req.value.Clone(),
	}, nil
}

// Subscribe delivers the relayer ids of decryptions as they become ready.
// Notifications are dropped for subscribers that are not keeping up.
func (r *MemoryRelayer) Subscribe(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subscribers, ch)
		close(ch)
		r.mu.Unlock()
	}()

	return ch, nil
}

func (r *MemoryRelayer) notify(relayerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ch := range r.subscribers {
		select {
		case ch <- relayerID:
		default:
		}
	}
}

func (r *MemoryRelayer) open(data []byte) (core.EncryptedType, *uint256.Int, error) {
	nonceSize := r.aead.NonceSize()
	if len(data) < nonceSize+r.aead.Overhead() {
		return "", nil, errors.New("ciphertext too short")
	}

	plaintext, err := r.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open ciphertext: %w", err)
	}
	return decodePlaintext(plaintext)
}

func encodePlaintext(typ core.EncryptedType, value *uint256.Int) []byte {
	out := make([]byte, 1, 33)
	for i, t := range core.SupportedTypes() {
		if t == typ {
			out[0] = byte(i)
		}
	}
	word := value.Bytes32()
	return append(out, word[:]...)
}

func decodePlaintext(plaintext []byte) (core.EncryptedType, *uint256.Int, error) {
	types := core.SupportedTypes()
	if len(plaintext) != 33 || int(plaintext[0]) >= len(types) {
		return "", nil, errors.New("malformed plaintext")
	}
	return types[plaintext[0]], new(uint256.Int).SetBytes32(plaintext[1:]), nil
}
