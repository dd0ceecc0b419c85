// Command hashpass prints a bcrypt hash for AUTH_BASIC_PASS_HASH, or checks a
// password against an existing hash.
//
//	go run ./cmd/hashpass -password secret
//	go run ./cmd/hashpass -password secret -check '$2a$10$...'
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	password := flag.String("password", "", "plain password")
	check := flag.String("check", "", "existing bcrypt hash to verify against")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "usage: hashpass -password <plain> [-check <hash>]")
		os.Exit(2)
	}

	if *check != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(*check), []byte(*password)); err != nil {
			fmt.Println("FAIL:", err)
			os.Exit(1)
		}
		fmt.Println("SUCCESS")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash:", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
