package crosschain

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"MindPress-Market/internal/contracts"
	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

type unknownAction struct{ CallOptions }

func (unknownAction) Kind() ActionKind { return "burn_everything" }

func sampleCreateGroup() CreateGroup {
	return CreateGroup{
		Name: "list-object-group-123",
		Callback: CallbackSpec{
			GasLimit:        500_000,
			FailureStrategy: SkipOnFail,
			CallbackData:    []byte{0x01, 0x02},
		},
	}
}

func sampleActions() []Action {
	return []Action{
		sampleCreateGroup(),
		CreatePolicy{Data: []byte{0xaa}, Callback: CallbackSpec{GasLimit: 500_000, FailureStrategy: SkipOnFail}},
		ListItem{GroupID: big.NewInt(7), Price: big.NewInt(123)},
		DelistItem{GroupID: big.NewInt(7)},
		GrantRole{Role: contracts.RoleID(contracts.RoleCreate), Expiry: time.Unix(1_900_000_000, 0)},
		SetApprovalForAll{Approved: true},
		CreateSpace{Bucket: contracts.BucketPackage{Name: "mindpress-test", Visibility: 2}},
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()
	for _, action := range sampleActions() {
		first, err := enc.Encode(testContext(), action, testPricing())
		if err != nil {
			t.Fatalf("encode %s: %v", action.Kind(), err)
		}
		second, err := enc.Encode(testContext(), action, testPricing())
		if err != nil {
			t.Fatalf("encode %s again: %v", action.Kind(), err)
		}
		if !bytes.Equal(first.Payload(), second.Payload()) || first.Value().Cmp(second.Value()) != 0 || first.Target() != second.Target() {
			t.Fatalf("%s encoding is not deterministic", action.Kind())
		}
	}
}

func TestEncodeDiffersPerField(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()
	base := sampleCreateGroup()
	variants := []CreateGroup{base, base, base, base, base, base}
	variants[1].Name = "list-object-group-124"
	variants[2].Owner = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	variants[3].Callback.GasLimit = 400_000
	variants[4].Callback.FailureStrategy = BlockOnFail
	variants[5].Callback.CallbackData = []byte{0x01, 0x03}

	seen := map[string]int{}
	for i, variant := range variants {
		call, err := enc.Encode(testContext(), variant, testPricing())
		if err != nil {
			t.Fatalf("encode variant %d: %v", i, err)
		}
		key := string(call.Payload())
		if prev, ok := seen[key]; ok {
			t.Fatalf("variants %d and %d produced the same payload", prev, i)
		}
		seen[key] = i
	}
}

func TestEncodeCreateGroupLayout(t *testing.T) {
	t.Parallel()

	call, err := NewEncoder().Encode(testContext(), sampleCreateGroup(), testPricing())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if call.Target() != testGroupHub {
		t.Fatalf("unexpected target %s", call.Target().Hex())
	}
	// (100*2 + 10) + 500000*5
	if call.Value().Int64() != 2_500_210 {
		t.Fatalf("unexpected value %s", call.Value())
	}
	method := contracts.GroupHub.Methods["prepareCreateGroup"]
	payload := call.Payload()
	if !bytes.Equal(payload[:4], method.ID) {
		t.Fatal("payload must start with prepareCreateGroup selector")
	}
	args, err := method.Inputs.Unpack(payload[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != testSigner || args[1].(common.Address) != testSigner {
		t.Fatalf("sender and owner should default to the signer, got %v %v", args[0], args[1])
	}
	if args[2].(string) != "list-object-group-123" {
		t.Fatalf("unexpected group name %v", args[2])
	}
	if args[3].(*big.Int).Int64() != 500_000 {
		t.Fatalf("unexpected callback gas limit %v", args[3])
	}
	if call.Method() != method.Sig || call.Kind() != KindCreateGroup {
		t.Fatalf("unexpected call metadata %s %s", call.Method(), call.Kind())
	}
}

func TestEncodeGrantRoleDefaultsToMarketplace(t *testing.T) {
	t.Parallel()

	expiry := time.Unix(1_900_000_000, 0)
	call, err := NewEncoder().Encode(testContext(), GrantRole{Role: contracts.RoleID(contracts.RoleCreate), Expiry: expiry}, Pricing{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if call.Target() != testBucketHub || call.Value().Sign() != 0 {
		t.Fatalf("unexpected target/value %s %s", call.Target().Hex(), call.Value())
	}
	args, err := contracts.BucketHub.Methods["grantRole"].Inputs.Unpack(call.Payload()[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[1].(common.Address) != testMarketplace {
		t.Fatalf("grantee should default to marketplace, got %v", args[1])
	}
	if args[2].(*big.Int).Int64() != expiry.Unix() {
		t.Fatalf("unexpected expiry %v", args[2])
	}
}

func TestEncodeAcceptsPointerActions(t *testing.T) {
	t.Parallel()

	action := sampleCreateGroup()
	byValue, err := NewEncoder().Encode(testContext(), action, testPricing())
	if err != nil {
		t.Fatalf("encode value: %v", err)
	}
	byPointer, err := NewEncoder().Encode(testContext(), &action, testPricing())
	if err != nil {
		t.Fatalf("encode pointer: %v", err)
	}
	if !bytes.Equal(byValue.Payload(), byPointer.Payload()) {
		t.Fatal("pointer and value encodings differ")
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Parallel()

	noGroupHub := testContext()
	noGroupHub.Addresses.GroupHub = common.Address{}
	badStrategy := sampleCreateGroup()
	badStrategy.Callback.FailureStrategy = FailureStrategy(9)
	var nilGroup *CreateGroup

	cases := []struct {
		name   string
		ectx   ExecutionContext
		action Action
		want   xerrors.Code
	}{
		{"nil action", testContext(), nil, CodeUnsupportedAction},
		{"typed nil", testContext(), nilGroup, CodeUnsupportedAction},
		{"unknown kind", testContext(), unknownAction{}, CodeUnsupportedAction},
		{"missing name", testContext(), CreateGroup{Callback: CallbackSpec{FailureStrategy: SkipOnFail}}, CodeEncodingError},
		{"unresolved hub", noGroupHub, sampleCreateGroup(), CodeEncodingError},
		{"invalid strategy", testContext(), badStrategy, CodeEncodingError},
		{"list without price", testContext(), ListItem{GroupID: big.NewInt(1)}, CodeEncodingError},
		{"list price above uint256", testContext(), ListItem{GroupID: big.NewInt(1), Price: new(big.Int).Lsh(big.NewInt(1), 256)}, CodeEncodingError},
		{"delist id above uint256", testContext(), DelistItem{GroupID: new(big.Int).Lsh(big.NewInt(1), 256)}, CodeEncodingError},
		{"grant without expiry", testContext(), GrantRole{Role: contracts.RoleID(contracts.RoleCreate)}, CodeEncodingError},
		{"space without name", testContext(), CreateSpace{}, CodeEncodingError},
	}
	for _, tc := range cases {
		_, err := NewEncoder().Encode(tc.ectx, tc.action, testPricing())
		if xerrors.CodeOf(err) != tc.want {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.want, err)
		}
	}
}

func TestEncodeCreateGroupWithoutGasPrice(t *testing.T) {
	t.Parallel()

	pricing := testPricing()
	pricing.CallbackGasPrice = nil
	_, err := NewEncoder().Encode(testContext(), sampleCreateGroup(), pricing)
	if xerrors.CodeOf(err) != CodeInvalidQuote {
		t.Fatalf("expected INVALID_QUOTE, got %v", err)
	}
}

func TestEncodeAllowFailureTravelsWithCall(t *testing.T) {
	t.Parallel()

	action := ListItem{CallOptions: CallOptions{AllowFailure: true}, GroupID: big.NewInt(1), Price: big.NewInt(2)}
	call, err := NewEncoder().Encode(testContext(), action, Pricing{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !call.AllowFailure() {
		t.Fatal("allowFailure flag lost during encoding")
	}
}

func TestLocalGroupID(t *testing.T) {
	t.Parallel()

	a := LocalGroupID(testSigner, "list-object-group-1")
	b := LocalGroupID(testSigner, "list-object-group-1")
	c := LocalGroupID(testSigner, "list-object-group-2")
	if a.Cmp(b) != 0 {
		t.Fatal("group id must be deterministic")
	}
	if a.Cmp(c) == 0 {
		t.Fatal("different names must give different ids")
	}
	if a.BitLen() > 256 {
		t.Fatal("group id must fit in uint256")
	}
}

func TestIsUint256(t *testing.T) {
	t.Parallel()

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	cases := []struct {
		v    *big.Int
		want bool
	}{
		{nil, false},
		{big.NewInt(-1), false},
		{big.NewInt(0), true},
		{max, true},
		{new(big.Int).Add(max, big.NewInt(1)), false},
	}
	for _, tc := range cases {
		if got := IsUint256(tc.v); got != tc.want {
			t.Fatalf("IsUint256(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}
