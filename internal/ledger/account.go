package ledger

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeRound
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCash AccountSubType = iota

	// Round sub-types
	SubTypeEscrow

	// System sub-types
	SubTypeSystemFees

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"CHIP": 1,
		"USDT": 2,
	}
	idToAsset = map[AssetID]string{
		1: "CHIP",
		2: "USDT",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (20 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, round id for escrow, name for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for a participant's cash account
func NewUserAccountKey(userID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeCash,
		AssetID:  assetID,
	}
}

// NewRoundEscrowKey creates the escrow account logically owned by a round.
// The round id is encoded big-endian in the entity field so escrow accounts
// sort in round order.
func NewRoundEscrowKey(roundID int64, assetID AssetID) AccountKey {
	var entityID [16]byte
	binary.BigEndian.PutUint64(entityID[8:], uint64(roundID))
	return AccountKey{
		Scope:    AccountScopeRound,
		EntityID: entityID,
		SubType:  SubTypeEscrow,
		AssetID:  assetID,
	}
}

// NewFeeAccountKey creates the platform owner-fee account.
func NewFeeAccountKey(assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte("fees"))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  SubTypeSystemFees,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// RoundID decodes the round id from an escrow account key.
func (k AccountKey) RoundID() int64 {
	return int64(binary.BigEndian.Uint64(k.EntityID[8:]))
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeRound:
		return fmt.Sprintf("round:%d:%s:%s", k.RoundID(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCash:
		return "cash"
	case SubTypeEscrow:
		return "escrow"
	case SubTypeSystemFees:
		return "fees"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}

// ParseAccountPath reverses AccountPath. Used when restoring snapshots,
// whose balance maps are keyed by path strings.
func ParseAccountPath(path string) AccountKey {
	parts := strings.Split(path, ":")
	if len(parts) < 3 {
		return AccountKey{}
	}

	assetID, _ := GetAssetID(parts[len(parts)-1])

	switch parts[0] {
	case "user":
		if len(parts) != 4 {
			return AccountKey{}
		}
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}
		}
		return NewUserAccountKey(uid, assetID)
	case "round":
		if len(parts) != 4 {
			return AccountKey{}
		}
		roundID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return AccountKey{}
		}
		return NewRoundEscrowKey(roundID, assetID)
	case "system":
		return NewFeeAccountKey(assetID)
	case "external":
		sub := SubTypeExternalDeposits
		if parts[1] == "withdrawals" {
			sub = SubTypeExternalWithdrawals
		}
		return NewExternalAccountKey(sub, assetID)
	}
	return AccountKey{}
}
