package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MindPress-Market/internal/crosschain"
	"MindPress-Market/internal/market"
	sdk "MindPress-Market/sdk/go/market"

	"github.com/ethereum/go-ethereum/common"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(context.Background(), append([]string{"marketctl"}, args...))
	return out.String(), err
}

func TestGroupIDLocal(t *testing.T) {
	t.Parallel()

	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	out, err := runApp(t, "group-id", "--object-id", "42", "--owner", owner.Hex())
	if err != nil {
		t.Fatalf("group-id: %v", err)
	}
	var got groupIDOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	want := crosschain.LocalGroupID(owner, market.GroupName(big.NewInt(42)))
	if got.GroupID != want.String() || got.Source != "local" || got.Name != "list-object-group-42" {
		t.Fatalf("unexpected output: %+v", got)
	}
}

func TestGroupIDRequiresOwner(t *testing.T) {
	t.Parallel()

	if _, err := runApp(t, "group-id", "--object-id", "42"); err == nil {
		t.Fatal("expected missing owner to fail")
	}
	if _, err := runApp(t, "group-id", "--object-id", "x", "--owner", "0x1111111111111111111111111111111111111111"); err == nil {
		t.Fatal("expected malformed object id to fail")
	}
	if _, err := runApp(t, "group-id", "--object-id", "42", "--source", "listing"); err == nil {
		t.Fatal("expected listing lookup without owner to fail")
	}
	if _, err := runApp(t, "group-id", "--object-id", "42", "--source", "guess", "--owner", "0x1111111111111111111111111111111111111111"); err == nil {
		t.Fatal("expected unknown source to fail")
	}
}

func TestListObjectSubmitsJob(t *testing.T) {
	t.Parallel()

	var submitted sdk.JobSubmission
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/jobs" {
			http.NotFound(w, r)
			return
		}
		authHeader = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&submitted); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(sdk.Job{ID: submitted.ID, Kind: submitted.Kind, Status: "pending"})
	}))
	defer srv.Close()

	out, err := runApp(t, "--server", srv.URL, "--token", "secret",
		"list-object", "--object-id", "0x10", "--bucket-id", "3", "--price", "0.5", "--id", "job-1")
	if err != nil {
		t.Fatalf("list-object: %v", err)
	}
	if authHeader != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", authHeader)
	}
	if submitted.ID != "job-1" || submitted.Kind != market.PlanListObject {
		t.Fatalf("unexpected submission: %+v", submitted)
	}
	var params market.ListObjectParams
	if err := json.Unmarshal(submitted.Params, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.ObjectID.Int64() != 16 || params.BucketID.Int64() != 3 || params.Price != "0.5" {
		t.Fatalf("unexpected params: %+v", params)
	}
	if !strings.Contains(out, `"job-1"`) {
		t.Fatalf("output should contain the job id: %s", out)
	}
}

func TestFeesPassesGasLimit(t *testing.T) {
	t.Parallel()

	var gasLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gasLimit = r.URL.Query().Get("callback_gas_limit")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sdk.Fees{RoundTripFee: "210", CallbackGasLimit: 300000})
	}))
	defer srv.Close()

	out, err := runApp(t, "--server", srv.URL, "fees", "--gas-limit", "300000")
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if gasLimit != "300000" {
		t.Fatalf("gas limit not forwarded: %q", gasLimit)
	}
	var fees sdk.Fees
	if err := json.Unmarshal([]byte(out), &fees); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if fees.RoundTripFee != "210" {
		t.Fatalf("unexpected fees: %+v", fees)
	}
}

func TestJobGetRequiresID(t *testing.T) {
	t.Parallel()

	if _, err := runApp(t, "job", "get"); err == nil {
		t.Fatal("expected missing id to fail")
	}
}

func TestCreateSpaceRejectsVisibilityOutOfRange(t *testing.T) {
	t.Parallel()

	if _, err := runApp(t, "--server", "http://127.0.0.1:1", "create-space", "--bucket-name", "space", "--visibility", "300"); err == nil {
		t.Fatal("expected out of range visibility to fail")
	}
}
