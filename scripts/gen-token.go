package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// Prints a fresh API token and its hash. Hand the token to the user and
// store the hash in users.api_token_hash.
func main() {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	token := hex.EncodeToString(bytes)
	hash := sha256.Sum256([]byte(token))

	fmt.Printf("token: %s\n", token)
	fmt.Printf("hash:  %s\n", hex.EncodeToString(hash[:]))
}
