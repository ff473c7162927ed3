package core

import "time"

// Snapshot is the single observable state of a client.
// Values reachable from a published snapshot are never mutated; updates
// replace pointers instead.
type Snapshot struct {
	Version uint64

	SessionID string
	Status    Status
	Config    Config
	CreatedAt time.Time
	InitError error

	Network *NetworkInfo

	Wallet       *WalletInfo
	WalletStatus WalletStatus
	WalletError  error

	Encryption EncryptionState
	Decryption DecryptionState
	Contract   ContractState
}

// EncryptionState is the encryption slot of a snapshot
type EncryptionState struct {
	IsEncrypting bool
	Value        *EncryptedValue
	Error        error
}

// DecryptionState is the decryption slot of a snapshot
type DecryptionState struct {
	IsDecrypting bool
	Pending      int
	Result       *DecryptionResult
	Error        error
}

// ContractState is the contract slot of a snapshot
type ContractState struct {
	IsReading bool
	IsWriting bool
	ReadData  *ReadResult
	Receipt   *TransactionReceipt
	Error     error
}

func (s Snapshot) IsInitialized() bool {
	return s.Status == StatusReady
}

func (s Snapshot) IsInitializing() bool {
	return s.Status == StatusInitializing
}

func (s Snapshot) IsConnected() bool {
	return s.WalletStatus == WalletConnected && s.Wallet != nil
}
