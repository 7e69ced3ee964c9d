// Manual test harness for the storage engine. Run one scenario at a
// time against a throwaway data directory:
//
//	go run tests/test.go 100k-write
//	go run tests/test.go overlapping
//	go run tests/test.go integrity
package main

import (
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chux0519/toy-kv/internal/engine"
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	slog.SetDefault(slog.New(handler))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "100k-write":
		test100kWrite()
	case "overlapping":
		testOverlappingKey()
	case "integrity":
		testIntegrity()
	default:
		fmt.Printf("Unknown test: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run tests/test.go <test-name>")
	fmt.Println("\nAvailable tests:")
	fmt.Println("  100k-write  - Write 100,000 unique keys and measure performance")
	fmt.Println("  overlapping - Overwrite one key and verify the latest value wins")
	fmt.Println("  integrity   - Write 100k keys, reopen, randomly read 1,000 to verify")
}

func tempDir() string {
	dir, err := os.MkdirTemp("", "toy-kv-test-*")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	return dir
}

func mustPut(store *engine.Store, key, value string) {
	k, err := engine.KeyFromString(key)
	if err != nil {
		log.Fatalf("Bad key %q: %v", key, err)
	}
	v, err := engine.ValueFromString(value)
	if err != nil {
		log.Fatalf("Bad value %q: %v", value, err)
	}
	if err := store.Put(k, v); err != nil {
		log.Fatalf("Failed to put %q: %v", key, err)
	}
}

func mustGet(store *engine.Store, key string) (string, bool) {
	k, err := engine.KeyFromString(key)
	if err != nil {
		log.Fatalf("Bad key %q: %v", key, err)
	}
	v, found, err := store.Get(k)
	if err != nil {
		log.Fatalf("Failed to get %q: %v", key, err)
	}
	return v.String(), found
}

// Test 1: 100k write test (speed and growth)
func test100kWrite() {
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("Test 1: 100k Write Test (Speed & Growth)")
	fmt.Println("=" + strings.Repeat("=", 60))

	dir := tempDir()
	defer os.RemoveAll(dir)

	store, err := engine.Open(dir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	totalKeys := 100000
	startTime := time.Now()

	fmt.Printf("Writing %d keys...\n", totalKeys)
	for i := 0; i < totalKeys; i++ {
		mustPut(store, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))

		if (i+1)%10000 == 0 {
			elapsed := time.Since(startTime)
			rate := float64(i+1) / elapsed.Seconds()
			fmt.Printf("Progress: %d/%d keys written (%.2f keys/sec)\n", i+1, totalKeys, rate)
		}
	}

	elapsed := time.Since(startTime)
	fmt.Println("\n" + strings.Repeat("-", 60))
	fmt.Printf("Total time: %v\n", elapsed)
	fmt.Printf("Write rate: %.2f keys/second\n", float64(totalKeys)/elapsed.Seconds())

	for _, name := range []string{"toy.k", "toy.v", "toy.b"} {
		if stat, err := os.Stat(filepath.Join(dir, name)); err == nil {
			fmt.Printf("%s: %d bytes (%.2f MB)\n", name, stat.Size(), float64(stat.Size())/1024/1024)
		}
	}
	fmt.Printf("Index entries: %d\n", store.Size())

	if store.Size() != totalKeys {
		fmt.Printf("\nTEST FAILED: index has %d entries, expected %d\n", store.Size(), totalKeys)
		os.Exit(1)
	}
	fmt.Println("\nTEST PASSED: All 100,000 keys written successfully")
}

// Test 2: overlapping key test
func testOverlappingKey() {
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("Test 2: Overlapping Key Test")
	fmt.Println("=" + strings.Repeat("=", 60))

	dir := tempDir()
	defer os.RemoveAll(dir)

	store, err := engine.Open(dir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	fmt.Println("Step 1: Putting key_1 with value_A")
	mustPut(store, "key_1", "value_A")

	fmt.Println("Step 2: Putting key_1 with value_B (superseding)")
	mustPut(store, "key_1", "value_B")

	fmt.Println("Step 3: Getting key_1")
	value, found := mustGet(store, "key_1")
	fmt.Printf("  Retrieved value: %q\n", value)

	if !found || value != "value_B" {
		fmt.Printf("\nTEST FAILED: expected value_B, got %q (found=%v)\n", value, found)
		os.Exit(1)
	}
	if store.Size() != 2 {
		fmt.Printf("\nTEST FAILED: index has %d entries, expected 2 (both versions kept)\n", store.Size())
		os.Exit(1)
	}
	fmt.Println("\nTEST PASSED: latest value wins, superseded entry retained")
}

// Test 3: integrity test across a reopen
func testIntegrity() {
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("Test 3: Integrity Test (write, reopen, random reads)")
	fmt.Println("=" + strings.Repeat("=", 60))

	dir := tempDir()
	defer os.RemoveAll(dir)

	store, err := engine.Open(dir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	totalKeys := 100000
	fmt.Printf("Writing %d keys...\n", totalKeys)
	for i := 0; i < totalKeys; i++ {
		mustPut(store, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}
	if err := store.Close(); err != nil {
		log.Fatalf("Failed to close store: %v", err)
	}

	fmt.Println("Reopening store...")
	store, err = engine.Open(dir)
	if err != nil {
		log.Fatalf("Failed to reopen store: %v", err)
	}
	defer store.Close()

	fmt.Println("Reading 1,000 random keys...")
	for n := 0; n < 1000; n++ {
		i := rand.Intn(totalKeys)
		value, found := mustGet(store, fmt.Sprintf("k%d", i))
		if !found || value != fmt.Sprintf("v%d", i) {
			fmt.Printf("\nTEST FAILED: k%d = %q (found=%v), expected v%d\n", i, value, found, i)
			os.Exit(1)
		}
	}
	fmt.Println("\nTEST PASSED: 1,000 random reads verified after reopen")
}
