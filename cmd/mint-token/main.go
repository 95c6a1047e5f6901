package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pztrick/television/internal/adapter/auth"
	"github.com/pztrick/television/internal/domain"
)

// Prints a bearer token the server's token resolver accepts. Meant for local
// development and smoke tests.
func main() {
	var (
		secret    = flag.String("secret", os.Getenv("JWT_SECRET"), "Signing secret (or set JWT_SECRET env)")
		issuer    = flag.String("issuer", os.Getenv("JWT_ISSUER"), "Issuer claim (or set JWT_ISSUER env)")
		userID    = flag.String("user", "", "User id (subject claim)")
		staff     = flag.Bool("staff", false, "Grant staff")
		superuser = flag.Bool("superuser", false, "Grant superuser")
		ttl       = flag.Duration("ttl", time.Hour, "Token lifetime")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("Secret required (--secret or JWT_SECRET env)")
	}
	if *userID == "" {
		log.Fatal("User id required (--user)")
	}

	token, err := auth.NewTokenResolver(*secret, *issuer).Sign(domain.Identity{
		Authenticated: true,
		UserID:        *userID,
		IsStaff:       *staff || *superuser,
		IsSuperuser:   *superuser,
	}, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
