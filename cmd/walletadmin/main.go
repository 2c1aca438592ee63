/**
 * @description
 * Operator tool to settle or cancel pending wallet transactions through the
 * wallet-service admin API. It prints the transaction and asks for
 * confirmation before acting.
 *
 * Usage:
 *   walletadmin <confirm-deposit|confirm-withdraw|cancel-withdraw> <transaction-id> [reason]
 *
 * Example:
 *   walletadmin cancel-withdraw 1b4e28ba-2fa1-11d2-883f-0016d3cca427 "bank account closed"
 *
 * @dependencies
 * - github.com/joho/godotenv: loads WALLET_SERVICE_URL and WALLET_ADMIN_TOKEN from .env.
 */

package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fservice/wallet-service/internal/domain"
	"github.com/fservice/wallet-service/pkg/walletclient"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const usage = "Usage: walletadmin <confirm-deposit|confirm-withdraw|cancel-withdraw> <transaction-id> [reason]"

func main() {
	if len(os.Args) < 3 {
		fmt.Println(usage)
		os.Exit(1)
	}
	action := strings.TrimSpace(os.Args[1])
	transactionID := strings.TrimSpace(os.Args[2])
	reason := strings.TrimSpace(strings.Join(os.Args[3:], " "))

	if _, err := uuid.Parse(transactionID); err != nil {
		log.Fatalf("Invalid transaction id %q: %v", transactionID, err)
	}

	expectedType, ok := map[string]domain.TransactionType{
		"confirm-deposit":  domain.TransactionTypeDeposit,
		"confirm-withdraw": domain.TransactionTypeWithdraw,
		"cancel-withdraw":  domain.TransactionTypeWithdraw,
	}[action]
	if !ok {
		fmt.Println(usage)
		os.Exit(1)
	}
	if action == "cancel-withdraw" && reason == "" {
		log.Fatal("A reason is required to cancel a withdrawal")
	}

	_ = godotenv.Load("../.env")
	_ = godotenv.Load()

	baseURL := os.Getenv("WALLET_SERVICE_URL")
	token := os.Getenv("WALLET_ADMIN_TOKEN")
	if token == "" {
		log.Fatal("WALLET_ADMIN_TOKEN environment variable is required")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
		fmt.Println("Using default wallet service URL:", baseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := walletclient.NewClient(baseURL, token)

	fmt.Printf("Fetching transaction %s\n", transactionID)
	tx, err := client.GetTransaction(ctx, transactionID)
	if err != nil {
		log.Fatalf("Failed to fetch transaction: %v", err)
	}
	printTransaction(tx)

	if tx.Type != expectedType {
		log.Fatalf("Transaction is a %s; %s needs a %s", tx.Type, action, expectedType)
	}
	if tx.Status != domain.TransactionStatusPending {
		log.Fatalf("Transaction is already %s", tx.Status)
	}

	fmt.Printf("\nAre you sure you want to %s this transaction? (yes/no): ", action)
	confirmation, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if strings.TrimSpace(confirmation) != "yes" {
		fmt.Println("Aborted.")
		os.Exit(0)
	}

	var result *domain.SettlementResult
	switch action {
	case "confirm-deposit":
		result, err = client.ConfirmDeposit(ctx, transactionID)
	case "confirm-withdraw":
		result, err = client.ConfirmWithdraw(ctx, transactionID)
	case "cancel-withdraw":
		result, err = client.CancelWithdraw(ctx, transactionID, reason)
	}
	if err != nil {
		log.Fatalf("Failed to %s: %v", action, err)
	}

	fmt.Printf("Transaction %s is now %s\n", result.Transaction.ID, result.Transaction.Status)
	fmt.Printf("Wallet %s: available=%d locked=%d\n", result.Wallet.ID, result.Wallet.AvailableBalance, result.Wallet.LockedBalance)
}

func printTransaction(tx *domain.Transaction) {
	fmt.Printf("Transaction Details:\n")
	fmt.Printf("  ID: %s\n", tx.ID)
	fmt.Printf("  Type: %s\n", tx.Type)
	fmt.Printf("  Status: %s\n", tx.Status)
	fmt.Printf("  Amount: %d\n", tx.Amount)
	fmt.Printf("  Initiator: %s\n", tx.InitiatorID)
	fmt.Printf("  Created: %s\n", tx.CreatedAt.Format(time.RFC3339))
	if tx.Note != "" {
		fmt.Printf("  Note: %s\n", tx.Note)
	}
	for key, value := range tx.PaymentDetail {
		fmt.Printf("  %s: %v\n", key, value)
	}
}
