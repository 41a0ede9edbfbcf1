package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/dgnsrekt/ttsclient/internal/config"
	"github.com/dgnsrekt/ttsclient/internal/credential"
	"github.com/dgnsrekt/ttsclient/internal/logging"
)

const usage = `usage: ttskey <command> [flags]

commands:
  encrypt   encrypt an API key (generates a new AES key and IV unless --reuse)
  rotate    re-encrypt the stored API key with a new AES key and IV
  show      report which credential fields are stored
`

// consoleNotifier prints operator feedback in place of a dialog.
type consoleNotifier struct {
	out, err io.Writer
}

func (n consoleNotifier) Success(msg string) { fmt.Fprintln(n.out, msg) }
func (n consoleNotifier) Error(msg string)   { fmt.Fprintln(n.err, "error: "+msg) }

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	flags := pflag.NewFlagSet(cmd, pflag.ExitOnError)
	path := flags.StringP("config", "c", "", "config file holding the credential section (default: ./ttsclient.yaml or ./config/ttsclient.yaml)")
	keySize := flags.Int("key-size", credential.DefaultKeySize, "AES key size in bytes (16, 24 or 32)")
	reuse := flags.Bool("reuse", false, "encrypt with the stored AES key and IV")
	logLevel := flags.String("log-level", "warn", "log level")

	var err error
	switch cmd {
	case "encrypt", "rotate", "show":
		flags.Parse(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	file := config.ResolvePath(*path)
	store := credential.NewFileStore(file)
	enc := credential.NewEncryptor(store, consoleNotifier{out: os.Stdout, err: os.Stderr}, *keySize, logging.New(*logLevel, "text"))

	switch cmd {
	case "encrypt":
		err = runEncrypt(enc, *reuse)
	case "rotate":
		_, err = enc.Rotate()
	case "show":
		err = runShow(store, file)
	}
	if err != nil {
		os.Exit(1)
	}
}

func runEncrypt(enc *credential.Encryptor, reuse bool) error {
	secret, err := readSecret(os.Stdin, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: failed to read API key:", err)
		return err
	}
	defer clear(secret)

	if reuse {
		_, err = enc.EncryptAndSet(secret)
	} else {
		_, err = enc.OneClick(secret)
	}
	return err
}

func runShow(store *credential.FileStore, path string) error {
	cred, err := store.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}

	fmt.Printf("file:              %s\n", path)
	fmt.Printf("encrypted_api_key: %s\n", presence(cred.EncryptedAPIKey))
	fmt.Printf("aes_key:           %s\n", presence(cred.AESKey))
	fmt.Printf("aes_iv:            %s\n", presence(cred.AESIV))

	if cred.IsComplete() {
		if _, err := cred.Decrypt(); err != nil {
			fmt.Println("status:            cannot be decrypted")
			return nil
		}
		fmt.Println("status:            ok")
	}
	return nil
}

func presence(v string) string {
	if v == "" {
		return "missing"
	}
	return "set"
}

// readSecret reads the API key without echo from a terminal, or the whole of
// stdin when it is piped. Trailing newlines are dropped.
func readSecret(in *os.File, prompt io.Writer) ([]byte, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "API key: ")
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		return secret, err
	}

	secret, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(secret, "\r\n"), nil
}
