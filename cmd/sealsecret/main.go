// Command sealsecret encrypts a secret, typically the database DSN, into the
// file format read by supabase.encrypted_dsn_path. The secret is read from
// stdin and the password from RESALEDASH_KEY_PASSWORD.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alanyoungcy/resaledash/internal/crypto"
)

func main() {
	out := flag.String("out", "dsn.sealed", "path of the sealed file to write")
	flag.Parse()

	password := os.Getenv("RESALEDASH_KEY_PASSWORD")
	if password == "" {
		fail("RESALEDASH_KEY_PASSWORD must be set")
	}

	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && secret == "" {
		fail("read secret from stdin: %v", err)
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		fail("secret is empty")
	}

	sealed, err := crypto.SealSecret(secret, password)
	if err != nil {
		fail("seal: %v", err)
	}
	if err := os.WriteFile(*out, sealed, 0o600); err != nil {
		fail("write %s: %v", *out, err)
	}

	// Round-trip so a typo in the password is caught now, not at startup.
	if _, err := crypto.LoadSecret(crypto.SecretConfig{SealedPath: *out, Password: password}); err != nil {
		fail("verify %s: %v", *out, err)
	}
	fmt.Fprintf(os.Stderr, "sealed secret written to %s\n", *out)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "sealsecret: "+format+"\n", args...)
	os.Exit(1)
}
