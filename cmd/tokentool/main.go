// Command tokentool encodes, decodes and inspects account tokens using the
// process key of an existing cache, for operator debugging.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/atinyakov/smsglue/internal/account"
	"github.com/atinyakov/smsglue/internal/codec"
	"github.com/atinyakov/smsglue/internal/db"
	"github.com/atinyakov/smsglue/internal/models"
	"github.com/atinyakov/smsglue/internal/repository"
	"github.com/atinyakov/smsglue/internal/store"
)

var errNoKey = errors.New("no process key in cache")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tokentool", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		cmd      = fs.String("cmd", "id", "command: encode, decode, id, hooks")
		cacheDir = fs.String("cache", "cache", "cache directory")
		dsn      = fs.String("d", "", "db address (overrides -cache)")
		token    = fs.String("token", "", "token to decode")
		origin   = fs.String("origin", "", "public base url for hooks")
		cred     models.AccountCredential
	)
	fs.StringVar(&cred.User, "user", "", "api user")
	fs.StringVar(&cred.Pass, "pass", "", "api password")
	fs.StringVar(&cred.DID, "did", "", "phone number")
	fs.StringVar(&cred.Scope, "scope", "", "provider scope")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var s store.Store
	if *dsn != "" {
		conn, err := db.InitPostgres(*dsn)
		if err != nil {
			return err
		}
		defer conn.Close()
		s = repository.NewPostgresCacheRepository(conn)
	} else {
		s = store.NewFileStore(*cacheDir)
	}

	// The key must already exist; tokentool never creates one.
	key, ok := s.Load(ctx, store.CategoryKey, store.KeyID)
	if !ok {
		return errNoKey
	}
	c, err := codec.New(key)
	if err != nil {
		return err
	}
	tokens := account.NewTokens(c)

	switch *cmd {
	case "encode":
		t, err := tokens.Encode(cred)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, t)
	case "decode":
		decoded, err := tokens.Decode(*token)
		if err != nil {
			return err
		}
		return json.NewEncoder(out).Encode(decoded)
	case "id":
		if cred.DID == "" && *token != "" {
			decoded, err := tokens.Decode(*token)
			if err != nil {
				return err
			}
			cred.DID = decoded.DID
		}
		id, err := tokens.AccountID(cred.DID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id)
	case "hooks":
		acc, err := tokens.Resolve(*token)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(acc.Hooks(*origin))
	default:
		return fmt.Errorf("unknown command %q", *cmd)
	}
	return nil
}
