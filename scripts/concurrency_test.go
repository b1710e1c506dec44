//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the borrowing API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <equipment_id> <user1_id> [user2_id ...]
//
// Or use the convenience environment variables:
//
//	EQUIPMENT_ID=<uuid>  USER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per user) all requesting the same equipment simultaneously.
//  2. Prints how many were approved outright, parked as pending, or queued.
//  3. The capacity invariant holds if approved quantity never exceeds the
//     equipment's stock — verify via GET /equipment/<id>/availability afterwards.
//
// Prerequisites:
//   - Server must be running with DATABASE_URL set and migrations applied.
//   - The equipment and the users must already exist.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type borrowResult struct {
	UserID     string
	Status     string // APPROVED or PENDING
	Queued     bool
	StatusCode int
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	equipmentID := os.Getenv("EQUIPMENT_ID")
	userIDsEnv := os.Getenv("USER_IDS")

	var userIDs []string
	if userIDsEnv != "" {
		userIDs = strings.Split(userIDsEnv, ",")
	}

	// Support positional args: script <equipment_id> [user_ids...]
	args := os.Args[1:]
	if len(args) >= 1 {
		equipmentID = args[0]
	}
	if len(args) >= 2 {
		userIDs = args[1:]
	}

	if equipmentID == "" {
		log.Fatal("Usage: EQUIPMENT_ID=<uuid> USER_IDS=<u1,u2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <equipment_id> <user1_id> [user2_id ...]")
	}
	if len(userIDs) == 0 {
		log.Fatal("At least one user ID must be provided via USER_IDS env or positional args")
	}

	fmt.Printf("=== Borrowing Concurrency Test ===\n")
	fmt.Printf("Server    : %s\n", serverAddr)
	fmt.Printf("Equipment : %s\n", equipmentID)
	fmt.Printf("Users     : %d\n\n", len(userIDs))

	results := make([]borrowResult, len(userIDs))
	var wg sync.WaitGroup

	// Fire all goroutines simultaneously using a barrier.
	start := make(chan struct{})

	for i, uid := range userIDs {
		wg.Add(1)
		go func(idx int, userID string) {
			defer wg.Done()
			<-start // wait for the barrier
			results[idx] = attemptBorrow(serverAddr, equipmentID, strings.TrimSpace(userID))
		}(i, uid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)

	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var approved, pending, queued, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] user=%-38s err=%v\n", r.UserID, r.Err)
		case r.Queued:
			queued++
			fmt.Printf("  [QUEU] user=%-38s status=%d queued for promotion\n", r.UserID, r.StatusCode)
		case r.Status == "APPROVED":
			approved++
			fmt.Printf("  [APPR] user=%-38s status=%d approved\n", r.UserID, r.StatusCode)
		case r.Status == "PENDING":
			pending++
			fmt.Printf("  [PEND] user=%-38s status=%d awaiting admin review\n", r.UserID, r.StatusCode)
		default:
			failures++
			fmt.Printf("  [FAIL] user=%-38s status=%d unexpected response\n", r.UserID, r.StatusCode)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Approved : %d\n", approved)
	fmt.Printf("Pending  : %d\n", pending)
	fmt.Printf("Queued   : %d\n", queued)
	fmt.Printf("Failures : %d\n", failures)
	fmt.Printf("Total    : %d\n\n", len(userIDs))

	fmt.Println("--- Invariant Check ---")
	fmt.Println("Approve/allocate runs under a per-equipment row lock, so approved")
	fmt.Println("quantity can never exceed stock. If 'Approved' is <= the equipment's")
	fmt.Println("stock, the system is correct; the rest were parked or queued.")

	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed — check server logs for details.\n", failures)
		os.Exit(1)
	}
}

// attemptBorrow sends POST /borrowings for the given user and parses the
// status/queued response fields.
func attemptBorrow(serverAddr, equipmentID, userID string) borrowResult {
	today := time.Now().UTC().Format("2006-01-02")
	end := time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02")
	body := fmt.Sprintf(
		`{"equipment_id":%q,"requester_id":%q,"quantity":1,"start_date":%q,"end_date":%q,"purpose":"stress test"}`,
		equipmentID, userID, today, end)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(serverAddr+"/borrowings", "application/json", bytes.NewBufferString(body))
	if err != nil {
		return borrowResult{UserID: userID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return borrowResult{UserID: userID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}

	status, _ := parsed["status"].(string)
	queued, _ := parsed["queued"].(bool)
	return borrowResult{
		UserID:     userID,
		Status:     status,
		Queued:     queued,
		StatusCode: resp.StatusCode,
	}
}
