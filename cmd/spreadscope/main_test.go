package main

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"spreadScope/internal/config"
	"spreadScope/internal/dex"
	"spreadScope/internal/runner"
	"spreadScope/internal/storage"
)

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"postgres://user:secret@db:5432/arb?sslmode=disable": "postgres://user@db:5432/arb",
		"https://bsc.example.org/v1?key=abc":                 "https://bsc.example.org/v1",
		"host=db user=u password=secret":                     "<redacted>",
	}
	for in, want := range cases {
		if got := redactURL(in); got != want {
			t.Fatalf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenDecimalsUsesConfiguredValue(t *testing.T) {
	got, err := tokenDecimals(context.Background(), dex.NewTokenMetaCache(), nil, common.HexToAddress("0x1"), 6, zap.NewNop())
	if err != nil {
		t.Fatalf("tokenDecimals: %v", err)
	}
	if got != 6 {
		t.Fatalf("decimals mismatch: %d", got)
	}
}

type revertingCaller struct{}

func (revertingCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("execution reverted")
}

func TestResolveDecimalsReportsUnavailablePrices(t *testing.T) {
	tokenA := common.HexToAddress("0x1")
	tokenB := common.HexToAddress("0x2")
	cfg := config.Config{TokenADecimals: 18, TokenBDecimals: config.AutoDecimals}

	var out bytes.Buffer
	_, _, err := resolveDecimals(context.Background(), &out, revertingCaller{}, cfg, tokenA, tokenB, zap.NewNop())
	if !errors.Is(err, runner.ErrQuoteFailure) {
		t.Fatalf("expected ErrQuoteFailure, got %v", err)
	}
	if !strings.Contains(out.String(), runner.PricesUnavailableMessage) {
		t.Fatalf("missing unavailable message, got %q", out.String())
	}

	cfg.TokenBDecimals = 6
	out.Reset()
	a, b, err := resolveDecimals(context.Background(), &out, revertingCaller{}, cfg, tokenA, tokenB, zap.NewNop())
	if err != nil {
		t.Fatalf("configured decimals: %v", err)
	}
	if a != 18 || b != 6 || out.Len() != 0 {
		t.Fatalf("unexpected result: %d %d %q", a, b, out.String())
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	store, closeStore := openStore(ctx, config.Config{Store: config.StoreNone}, logger)
	closeStore()
	if store != nil {
		t.Fatalf("expected no store for none")
	}

	store, closeStore = openStore(ctx, config.Config{Store: config.StoreAuto}, logger)
	closeStore()
	if store != nil {
		t.Fatalf("expected no store for auto without dsn")
	}

	store, closeStore = openStore(ctx, config.Config{Store: config.StoreJsonl, OutDir: t.TempDir()}, logger)
	closeStore()
	if _, ok := store.(*storage.JsonlStore); !ok {
		t.Fatalf("expected jsonl store, got %T", store)
	}
}
