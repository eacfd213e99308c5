// Command mcavkeys manages the mcav credential file: it hashes secrets,
// verifies hashes, generates API keys, and writes a starter auth file.
//
// Usage:
//
//	mcavkeys hash [-method bcrypt|sha256] <password>
//	mcavkeys verify <stored-hash> <password>
//	mcavkeys keygen
//	mcavkeys init [-out configs/auth.json] [-dj <id>] [-vj <id>]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MrWong99/mcav/internal/auth"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "hash":
		return cmdHash(args[1:])
	case "verify":
		return cmdVerify(args[1:])
	case "keygen":
		return cmdKeygen()
	case "init":
		return cmdInit(args[1:])
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "mcavkeys: unknown command %q\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  mcavkeys hash [-method bcrypt|sha256] <password>   hash one secret
  mcavkeys verify <stored-hash> <password>           check a secret against a hash
  mcavkeys keygen                                    generate a random API key
  mcavkeys init [-out path] [-dj id] [-vj id]        write a starter credential file`)
}

func cmdHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	method := fs.String("method", auth.MethodBcrypt, "hashing method: bcrypt or sha256")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "mcavkeys hash: exactly one password argument required")
		return 2
	}

	h, err := auth.HashPassword(fs.Arg(0), *method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcavkeys hash: %v\n", err)
		return 1
	}
	fmt.Println(h)
	return 0
}

func cmdVerify(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "mcavkeys verify: <stored-hash> <password> required")
		return 2
	}
	if !auth.VerifyPassword(args[1], args[0]) {
		fmt.Println("no match")
		return 1
	}
	fmt.Println("match")
	return 0
}

func cmdKeygen() int {
	fmt.Println(auth.GenerateAPIKey())
	return 0
}

func cmdInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	out := fs.String("out", "configs/auth.json", "output path for the credential file")
	djID := fs.String("dj", "dj1", "id of the initial DJ entry")
	vjID := fs.String("vj", "admin", "id of the initial operator entry")
	_ = fs.Parse(args)

	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(os.Stderr, "mcavkeys init: %q already exists, refusing to overwrite\n", *out)
		return 1
	}

	djKey := auth.GenerateAPIKey()
	vjKey := auth.GenerateAPIKey()

	djHash, err := auth.HashPassword(djKey, auth.MethodBcrypt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcavkeys init: %v\n", err)
		return 1
	}
	vjHash, err := auth.HashPassword(vjKey, auth.MethodBcrypt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcavkeys init: %v\n", err)
		return 1
	}

	store := &auth.Store{
		DJs: map[string]auth.DJRecord{
			*djID: {Name: *djID, KeyHash: djHash, Priority: 10},
		},
		VJOperators: map[string]auth.VJRecord{
			*vjID: {Name: *vjID, KeyHash: vjHash},
		},
	}
	if err := store.Save(*out); err != nil {
		fmt.Fprintf(os.Stderr, "mcavkeys init: %v\n", err)
		return 1
	}

	// The plaintext keys are printed exactly once; only hashes hit disk.
	fmt.Printf("wrote %s\n\n", *out)
	fmt.Printf("DJ %q key:       %s\n", *djID, djKey)
	fmt.Printf("Operator %q key: %s\n", *vjID, vjKey)
	fmt.Println("\nStore these keys now — they cannot be recovered from the file.")
	return 0
}
