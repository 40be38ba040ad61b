/*
Package gmailhttp implements an HTTP client for gmail.

OAuth 2.0 client credentials come from a client secrets JSON file
downloaded from the Google Cloud console (an "installed application"
client).  The user's token is kept in a token.Store; it is obtained
once with Authorize and refreshed as needed afterwards, with every
refreshed token written back to the store.

An API key may optionally be attached to every request.
*/
package gmailhttp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/matta/mailsnip/internal/gmail"
	"github.com/matta/mailsnip/internal/token"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi/transport"
)

// ErrNoToken is returned by New when the store holds no token yet.
var ErrNoToken = errors.New("no OAuth token saved; run the auth command first")

// Options configures New.
type Options struct {
	// Path to the client secrets JSON file.
	Credentials string

	// Optional API key sent with every request.
	APIKey string

	Store token.Store
}

// Config reads OAuth 2.0 client credentials from a client secrets
// file.
func Config(credentials string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentials)
	if err != nil {
		return nil, errors.Wrapf(err, "reading client secrets %q", credentials)
	}
	conf, err := google.ConfigFromJSON(b, gmail.Scope)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing client secrets %q", credentials)
	}
	return conf, nil
}

// savingTokenSource writes every token that differs from the last one
// it has seen to a token.Store.  Satisfies oauth2.TokenSource.
type savingTokenSource struct {
	src   oauth2.TokenSource
	store token.Store

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.Save(tok); err != nil {
			return nil, errors.Wrap(err, "saving refreshed token")
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// New returns a new HTTP client capable of using the GMail API.
func New(ctx context.Context, opts Options) (*http.Client, error) {
	conf, err := Config(opts.Credentials)
	if err != nil {
		return nil, err
	}
	tok, err := opts.Store.Load()
	if err == token.ErrNotFound {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	return newClient(ctx, conf, tok, opts), nil
}

func newClient(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token, opts Options) *http.Client {
	src := &savingTokenSource{
		src:   conf.TokenSource(ctx, tok),
		store: opts.Store,
		last:  tok.AccessToken,
	}

	// A nil Base means http.DefaultTransport at request time, so
	// request tracing installed on it later still applies.
	var base http.RoundTripper
	if opts.APIKey != "" {
		base = &transport.APIKey{Key: opts.APIKey}
	}

	return &http.Client{Transport: &oauth2.Transport{
		Source: oauth2.ReuseTokenSource(tok, src),
		Base:   base,
	}}
}

// Authorize runs the installed application consent flow: it prints
// the consent URL to out, reads the authorization code from in,
// exchanges it and saves the resulting token.
func Authorize(ctx context.Context, conf *oauth2.Config, store token.Store, in io.Reader, out io.Writer) error {
	if conf.RedirectURL == "" {
		conf.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}
	url := conf.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Visit the following URL, grant access, and paste the authorization code:\n\n%s\n\nCode: ", url)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "reading authorization code")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("no authorization code given")
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return errors.Wrap(err, "exchanging authorization code")
	}
	if err := store.Save(tok); err != nil {
		return err
	}
	fmt.Fprintln(out, "Token saved.")
	return nil
}
