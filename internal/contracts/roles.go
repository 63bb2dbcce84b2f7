package contracts

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role names understood by the hub contracts' access control.
const (
	RoleCreate = "ROLE_CREATE"
	RoleDelete = "ROLE_DELETE"
	RoleUpdate = "ROLE_UPDATE"
)

// RoleID returns keccak256(name), the identifier AccessControl stores for a
// role. It equals solidityKeccak256(["string"], [name]).
func RoleID(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}
