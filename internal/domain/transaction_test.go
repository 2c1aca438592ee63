package domain

import "testing"

func TestTransactionStatusTerminal(t *testing.T) {
	cases := map[TransactionStatus]bool{
		TransactionStatusPending:   false,
		TransactionStatusSuccess:   true,
		TransactionStatusCancelled: true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %t, want %t", status, got, want)
		}
	}
}
