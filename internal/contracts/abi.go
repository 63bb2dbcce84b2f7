package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Function ABIs of every remote contract the orchestrator talks to. The
// argument order and types must match the deployed contracts exactly.

const CrossChainABI = `[
 {"type":"function","name":"getRelayFees","stateMutability":"view","inputs":[],
  "outputs":[{"name":"relayFee","type":"uint256"},{"name":"minAckRelayFee","type":"uint256"}]},
 {"type":"function","name":"callbackGasPrice","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"uint256"}]}]`

const extraDataTuple = `{"name":"extraData","type":"tuple","components":[
    {"name":"appAddress","type":"address"},
    {"name":"refundAddress","type":"address"},
    {"name":"failureHandleStrategy","type":"uint8"},
    {"name":"callbackData","type":"bytes"}]}`

const GroupHubABI = `[
 {"type":"function","name":"prepareCreateGroup","stateMutability":"payable",
  "inputs":[
    {"name":"sender","type":"address"},
    {"name":"owner","type":"address"},
    {"name":"name","type":"string"},
    {"name":"callbackGasLimit","type":"uint256"},
    ` + extraDataTuple + `],
  "outputs":[{"name":"","type":"uint8"},{"name":"","type":"bytes"}]}]`

const PermissionHubABI = `[
 {"type":"function","name":"prepareCreatePolicy","stateMutability":"payable",
  "inputs":[
    {"name":"sender","type":"address"},
    {"name":"data","type":"bytes"},
    ` + extraDataTuple + `],
  "outputs":[{"name":"","type":"uint8"},{"name":"","type":"bytes"}]}]`

const BucketHubABI = `[
 {"type":"function","name":"hasRole","stateMutability":"view",
  "inputs":[{"name":"role","type":"bytes32"},{"name":"granter","type":"address"},{"name":"account","type":"address"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"grantRole","stateMutability":"nonpayable",
  "inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"},{"name":"expireTime","type":"uint256"}],
  "outputs":[]}]`

const ERC721ABI = `[
 {"type":"function","name":"isApprovedForAll","stateMutability":"view",
  "inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable",
  "inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],
  "outputs":[]}]`

const MultiMessageABI = `[
 {"type":"function","name":"sendMessages","stateMutability":"payable",
  "inputs":[{"name":"_targets","type":"address[]"},{"name":"_data","type":"bytes[]"},{"name":"_values","type":"uint256[]"}],
  "outputs":[{"name":"","type":"bool"}]}]`

const Multicall3ABI = `[
 {"type":"function","name":"aggregate3Value","stateMutability":"payable",
  "inputs":[{"name":"calls","type":"tuple[]","components":[
    {"name":"target","type":"address"},
    {"name":"allowFailure","type":"bool"},
    {"name":"value","type":"uint256"},
    {"name":"callData","type":"bytes"}]}],
  "outputs":[{"name":"returnData","type":"tuple[]","components":[
    {"name":"success","type":"bool"},
    {"name":"returnData","type":"bytes"}]}]}]`

const MarketplaceABI = `[
 {"type":"function","name":"_CROSS_CHAIN","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"_GROUP_HUB","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"_BUCKET_HUB","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"_PERMISSION_HUB","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"_MULTI_MESSAGE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"_GREENFIELD_EXECUTOR","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"_GROUP_TOKEN","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"getGroupId","stateMutability":"view",
  "inputs":[{"name":"name","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getListGroupId","stateMutability":"view",
  "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"createSpace","stateMutability":"payable",
  "inputs":[
    {"name":"bucket","type":"tuple","components":[
      {"name":"creator","type":"address"},
      {"name":"name","type":"string"},
      {"name":"visibility","type":"uint8"},
      {"name":"paymentAddress","type":"address"},
      {"name":"primarySpAddress","type":"address"},
      {"name":"primarySpApprovalExpiredHeight","type":"uint256"},
      {"name":"primarySpSignature","type":"bytes"},
      {"name":"chargedReadQuota","type":"uint64"},
      {"name":"extraData","type":"bytes"}]},
    {"name":"dataSetBucketFlowRateLimit","type":"string"}],
  "outputs":[]},
 {"type":"function","name":"list","stateMutability":"nonpayable",
  "inputs":[{"name":"groupId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"delist","stateMutability":"nonpayable",
  "inputs":[{"name":"groupId","type":"uint256"}],"outputs":[]}]`

// Multicall3Address is the canonical Multicall3 deployment shared by most EVM
// networks, including BSC and opBNB.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// Parsed ABIs, validated once at init.
var (
	CrossChain    = mustParse("CrossChain", CrossChainABI)
	GroupHub      = mustParse("GroupHub", GroupHubABI)
	PermissionHub = mustParse("PermissionHub", PermissionHubABI)
	BucketHub     = mustParse("BucketHub", BucketHubABI)
	ERC721        = mustParse("ERC721", ERC721ABI)
	MultiMessage  = mustParse("MultiMessage", MultiMessageABI)
	Multicall3    = mustParse("Multicall3", Multicall3ABI)
	Marketplace   = mustParse("Marketplace", MarketplaceABI)
)

func mustParse(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse %s abi: %v", name, err))
	}
	return parsed
}

// ExtraData mirrors the callback extra-data tuple accepted by the hub
// contracts' prepare* functions.
type ExtraData struct {
	AppAddress            common.Address
	RefundAddress         common.Address
	FailureHandleStrategy uint8
	CallbackData          []byte
}

// BucketPackage mirrors the bucket tuple accepted by Marketplace.createSpace.
type BucketPackage struct {
	Creator                        common.Address
	Name                           string
	Visibility                     uint8
	PaymentAddress                 common.Address
	PrimarySpAddress               common.Address
	PrimarySpApprovalExpiredHeight *big.Int
	PrimarySpSignature             []byte
	ChargedReadQuota               uint64
	ExtraData                      []byte
}

// Call3Value mirrors Multicall3.Call3Value.
type Call3Value struct {
	Target       common.Address
	AllowFailure bool
	Value        *big.Int
	CallData     []byte
}

// Multicall3Result mirrors Multicall3.Result.
type Multicall3Result struct {
	Success    bool
	ReturnData []byte
}
