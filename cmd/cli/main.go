package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/i5heu/ouroboros-blocks/pkg/client"
	"github.com/i5heu/ouroboros-blocks/pkg/proof"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
)

const keyEnv = "OUROBOROS_KEY"

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ouroboros-blocks-cli <command> [flags]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen")
	fmt.Fprintln(w, "  check  [-pub HEX]")
	fmt.Fprintln(w, "  groups [-pub HEX]")
	fmt.Fprintln(w, "  keys   -group G [-pub HEX]")
	fmt.Fprintln(w, "  list   -group G [-pub HEX]")
	fmt.Fprintln(w, "  get    -group G -key K [-pub HEX]")
	fmt.Fprintln(w, "  save   -group G -key K -version V [-data S | -file PATH] [-secret HEX]")
	fmt.Fprintln(w, "  delete -group G -key K -secret HEX")
	fmt.Fprintf(w, "The signing key is read from -priv or $%s.\n", keyEnv)
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	if err := run(context.Background(), os.Args[1], os.Args[2:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server  string
	priv    string
	pub     string
	group   string
	key     string
	version string
	data    string
	file    string
	secret  string
}

func run(ctx context.Context, cmd string, args []string, stdin io.Reader, stdout io.Writer) error {
	if cmd == "keygen" {
		return keygen(stdout)
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var o options
	fs.StringVar(&o.server, "server", "http://127.0.0.1:4242", "Server base URL")
	fs.StringVar(&o.priv, "priv", os.Getenv(keyEnv), "Hex private key")
	fs.StringVar(&o.pub, "pub", "", "Hex public key to read; defaults to the signing key")
	fs.StringVar(&o.group, "group", "", "Data group")
	fs.StringVar(&o.key, "key", "", "Data key")
	fs.StringVar(&o.version, "version", "", "Data version")
	fs.StringVar(&o.data, "data", "", "Block contents")
	fs.StringVar(&o.file, "file", "", "Read block contents from a file, - for stdin")
	fs.StringVar(&o.secret, "secret", "", "Current record secret (hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var signer *proof.Signer
	if o.priv != "" {
		var err error
		if signer, err = proof.SignerFromHex(o.priv); err != nil {
			return fmt.Errorf("private key: %w", err)
		}
	}
	c := client.New(o.server, signer)
	pub := o.pub
	if pub == "" {
		pub = c.PublicKey()
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	switch cmd {
	case "check":
		exists, err := c.Check(ctx, pub)
		if err != nil {
			return err
		}
		return printJSON(stdout, map[string]bool{"exists": exists})
	case "groups":
		groups, err := c.Groups(ctx, pub)
		if err != nil {
			return err
		}
		return printJSON(stdout, groups)
	case "keys":
		keys, err := c.Keys(ctx, pub, o.group)
		if err != nil {
			return err
		}
		return printJSON(stdout, keys)
	case "list":
		recs, err := c.List(ctx, pub, o.group)
		if err != nil {
			return err
		}
		return printJSON(stdout, recs)
	case "get":
		rec, err := c.Get(ctx, pub, o.group, o.key)
		if err != nil {
			return err
		}
		return printJSON(stdout, rec)
	case "save":
		block, err := readBlock(o, stdin)
		if err != nil {
			return err
		}
		current, err := parseOptionalSecret(o.secret)
		if err != nil {
			return err
		}
		rec, err := c.Save(ctx, o.group, o.key, block, o.version, current)
		if err != nil {
			return err
		}
		return printJSON(stdout, rec)
	case "delete":
		current, err := parseOptionalSecret(o.secret)
		if err != nil {
			return err
		}
		if err := c.Delete(ctx, o.group, o.key, current); err != nil {
			return err
		}
		return printJSON(stdout, map[string]bool{"success": true})
	default:
		usage(stdout)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func keygen(w io.Writer) error {
	s, err := proof.GenerateSigner()
	if err != nil {
		return err
	}
	return printJSON(w, map[string]string{
		"private_key": s.PrivateKeyHex(),
		"public_key":  s.PublicKey().Hex(),
	})
}

func readBlock(o options, stdin io.Reader) ([]byte, error) {
	switch {
	case o.file == "-":
		return io.ReadAll(stdin)
	case o.file != "":
		return os.ReadFile(o.file)
	default:
		return []byte(o.data), nil
	}
}

func parseOptionalSecret(h string) (secret.Secret, error) {
	if h == "" {
		return secret.Secret{}, nil
	}
	s, err := secret.Parse(h)
	if err != nil {
		return secret.Secret{}, fmt.Errorf("secret: %w", err)
	}
	return s, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Join(errors.New("write output"), err)
	}
	return nil
}
