package billing_test

import (
	"context"
	"os"
	"testing"

	"github.com/voicebridge/gateway/internal/billing"
	"github.com/voicebridge/gateway/internal/callsession"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOICEBRIDGE_TEST_POSTGRES_DSN is not set — no live Postgres is
// available in this environment, so these integration tests are opt-in.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOICEBRIDGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOICEBRIDGE_TEST_POSTGRES_DSN not set — skipping Postgres integration tests")
	}
	return dsn
}

func newTestLedger(t *testing.T) *billing.Ledger {
	t.Helper()
	l, err := billing.Open(testDSN(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerGetOrCreateProvisionsZeroBalance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newTestLedger(t)

	acct, err := l.GetOrCreate(ctx, "client-new-"+t.Name())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if acct.Balance != 0 {
		t.Errorf("got balance %v, want 0 for a freshly provisioned account", acct.Balance)
	}

	again, err := l.GetOrCreate(ctx, acct.ClientID)
	if err != nil {
		t.Fatalf("GetOrCreate (second call): %v", err)
	}
	if again.Balance != acct.Balance {
		t.Errorf("GetOrCreate is not idempotent: got %v, want %v", again.Balance, acct.Balance)
	}
}

func TestLedgerBillCallDeductsCreditsFromBalance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newTestLedger(t)
	clientID := "client-bill-" + t.Name()

	if _, err := l.GetOrCreate(ctx, clientID); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := l.UseCredits(ctx, clientID, -10, "test-topup", nil); err != nil {
		t.Fatalf("UseCredits (topup): %v", err)
	}

	result, err := l.BillCall(ctx, clientID, 120, callsession.BillMeta{StreamID: "s1"})
	if err != nil {
		t.Fatalf("BillCall: %v", err)
	}
	if result.CreditsUsed != 4 {
		t.Errorf("got CreditsUsed %v, want 4 for 120s at 30s/credit", result.CreditsUsed)
	}
	if result.BalanceAfter != 6 {
		t.Errorf("got BalanceAfter %v, want 6", result.BalanceAfter)
	}
}

func TestLedgerUseCreditsRecordsArbitraryDeduction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newTestLedger(t)
	clientID := "client-use-" + t.Name()

	if _, err := l.GetOrCreate(ctx, clientID); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := l.UseCredits(ctx, clientID, -5, "test-topup", nil); err != nil {
		t.Fatalf("UseCredits (topup): %v", err)
	}
	if err := l.UseCredits(ctx, clientID, 1, "messaging", map[string]string{"to": "919999999999"}); err != nil {
		t.Fatalf("UseCredits: %v", err)
	}

	acct, err := l.GetOrCreate(ctx, clientID)
	if err != nil {
		t.Fatalf("GetOrCreate (recheck): %v", err)
	}
	if acct.Balance != 4 {
		t.Errorf("got balance %v, want 4 after a 1-credit messaging charge", acct.Balance)
	}
}
