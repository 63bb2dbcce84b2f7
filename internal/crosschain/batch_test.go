package crosschain

import (
	"math/big"
	"math/rand"
	"testing"

	xerrors "MindPress-Market/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

func TestAssembleEmpty(t *testing.T) {
	t.Parallel()

	if _, err := Assemble(nil); xerrors.CodeOf(err) != CodeEmptyBatch {
		t.Fatalf("expected EMPTY_BATCH, got %v", err)
	}
}

func TestAssemblePreservesOrderAndSumsExactly(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	limit.Add(limit, big.NewInt(1))

	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(20)
		calls := make([]EncodedCall, n)
		want := new(big.Int)
		for i := range calls {
			value := new(big.Int).Rand(rng, limit)
			want.Add(want, value)
			calls[i] = NewEncodedCall(common.BigToAddress(big.NewInt(int64(i+1))), value, []byte{byte(i)}, false)
		}
		batch, err := Assemble(calls)
		if err != nil {
			t.Fatalf("assemble: %v", err)
		}
		if batch.TotalValue().Cmp(want) != 0 {
			t.Fatalf("round %d: total %s, want %s", round, batch.TotalValue(), want)
		}
		for i, target := range batch.Targets() {
			if target != common.BigToAddress(big.NewInt(int64(i+1))) {
				t.Fatalf("round %d: order changed at %d", round, i)
			}
		}
	}
}

func TestEncodedCallIsImmutable(t *testing.T) {
	t.Parallel()

	payload := []byte{0x01, 0x02}
	value := big.NewInt(10)
	call := NewEncodedCall(common.HexToAddress("0x01"), value, payload, false)

	payload[0] = 0xff
	value.SetInt64(99)
	call.Payload()[1] = 0xff
	call.Value().SetInt64(77)

	if got := call.Payload(); got[0] != 0x01 || got[1] != 0x02 {
		t.Fatalf("payload mutated: %x", got)
	}
	if call.Value().Int64() != 10 {
		t.Fatalf("value mutated: %s", call.Value())
	}

	batch, err := Assemble([]EncodedCall{call})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	batch.TotalValue().SetInt64(0)
	if batch.TotalValue().Int64() != 10 {
		t.Fatal("batch total mutated through accessor")
	}
}

func TestBatchDigestDependsOnOrder(t *testing.T) {
	t.Parallel()

	a := NewEncodedCall(common.HexToAddress("0x01"), nil, []byte{0x01}, false)
	b := NewEncodedCall(common.HexToAddress("0x02"), nil, []byte{0x02}, false)
	ab, _ := Assemble([]EncodedCall{a, b})
	ba, _ := Assemble([]EncodedCall{b, a})
	if ab.Digest() == ba.Digest() {
		t.Fatal("digest must reflect call order")
	}
}
