package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"gemini-desk/internal/config"
)

// Prompter reads operator answers line by line.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

// Ask prints label and returns the trimmed answer. io.EOF is returned once
// the input is exhausted.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) || line == "" {
			return "", err
		}
	}
	return strings.TrimSpace(line), nil
}

// Secret reads an answer without echo when the input is a terminal.
func (p *Prompter) Secret(label string) (string, error) {
	if p.fd < 0 {
		return p.Ask(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Confirm asks a yes/no question; anything but yes or y declines.
func (p *Prompter) Confirm(msg string) bool {
	fmt.Fprintln(p.out)
	ans, err := p.Ask(msg + " (yes/no) ")
	if err != nil || (ans != "yes" && ans != "y") {
		fmt.Fprintln(p.out, "skipping order")
		return false
	}
	return true
}

func (p *Prompter) ChooseExchange() (config.ExchangeMode, error) {
	ans, err := p.Ask("Which Exchange ['live', 'sandbox', 'paper']? ")
	if err != nil {
		return "", err
	}
	mode := config.ExchangeMode(strings.ToLower(ans))
	if !mode.Valid() {
		return "", fmt.Errorf("unknown exchange %q", ans)
	}
	return mode, nil
}

// Login asks for API keys. Keys left blank are read from the credential file
// of the selected exchange; the live file is only used with mode 0600.
func (p *Prompter) Login(cfg config.Config) (config.Credentials, error) {
	key, err := p.Ask("api_key: ")
	if err != nil {
		return config.Credentials{}, err
	}
	secret, err := p.Secret("secret_key: ")
	if err != nil {
		return config.Credentials{}, err
	}
	creds := config.Credentials{APIKey: key, SecretKey: secret}
	if creds.Complete() {
		return creds, nil
	}

	path := cfg.CredentialFile()
	saved, err := config.LoadCredentials(path, cfg.Exchange == config.ExchangeLive)
	if err != nil {
		fmt.Fprintf(p.out, "\nWarning: unable to read default creds from %s\n%v\n", path, err)
		return creds, errors.New("invalid keys")
	}
	if creds.APIKey == "" {
		creds.APIKey = saved.APIKey
	}
	if creds.SecretKey == "" {
		creds.SecretKey = saved.SecretKey
	}
	return creds, nil
}
