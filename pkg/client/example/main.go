package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/erc4337/aakeyring/pkg/client"
)

const (
	baseURL   = "http://localhost:8080"
	origin    = "http://localhost:8000"
	apiSecret = ""
)

func main() {
	c := client.NewClient(baseURL, origin, apiSecret)

	// 1. Health Check
	fmt.Println("1. Performing Health Check...")
	health, err := c.Health()
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Printf("   Health status: %s\n\n", health)

	// 2. Create a new account
	fmt.Println("2. Creating a new account...")
	account, err := c.CreateAccount("example-account", nil)
	if err != nil {
		log.Fatalf("Failed to create account: %v", err)
	}
	fmt.Printf("   Created account %s at %s\n\n", account.ID, account.Address)

	// 3. Queue a personal_sign request and approve it
	fmt.Println("3. Submitting a personal_sign request...")
	requestID, err := c.NextRequestID()
	if err != nil {
		log.Fatalf("Failed to reserve request id: %v", err)
	}
	message, _ := json.Marshal("0x48656c6c6f2c20616161") // "Hello, aaa"
	from, _ := json.Marshal(account.Address)
	request := client.SigningRequest{
		ID:        fmt.Sprintf("%d", requestID),
		AccountID: account.ID,
		Scope:     "eip155:1337",
		Method:    "personal_sign",
		Params:    []json.RawMessage{message, from},
	}
	if err := c.SubmitRequest(request); err != nil {
		log.Fatalf("Failed to submit request: %v", err)
	}

	result, err := c.ApproveRequest(request.ID)
	if err != nil {
		log.Fatalf("Failed to approve request: %v", err)
	}
	fmt.Printf("   Signature: %s\n\n", result)

	// 4. Inspect the smart account
	fmt.Println("4. Querying the smart account...")
	summary, err := c.SmartAccount(account.ID)
	if err != nil {
		log.Fatalf("Failed to query smart account: %v", err)
	}
	fmt.Printf("   Smart account %s, balance %s wei, nonce %s\n", summary.Address, summary.Balance, summary.Nonce)
	fmt.Printf("   Entry point %s, factory %s\n\n", summary.EntryPoint, summary.FactoryAddress)

	// 5. Send a user operation (requires a funded account and running bundler)
	fmt.Println("5. Sending a user operation...")
	userOpHash, err := c.SendUserOperation(account.ID,
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "10000000000000000", "0x")
	if err != nil {
		log.Printf("   Skipped: %v", err)
		return
	}
	fmt.Printf("   UserOperation hash: %s\n", userOpHash)
}
