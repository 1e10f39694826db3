package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/oauth2"

	"github.com/onnwee/lastchat/lastmsg"
	"github.com/onnwee/lastchat/testutil"
	"github.com/onnwee/lastchat/twitchapi"
)

// fakeClient replays scripted behaviour instead of dialing Twitch.
type fakeClient struct {
	mu         sync.Mutex
	onConnect  func()
	onMessage  func(twitch.PrivateMessage)
	joined     []string
	password   string
	connectErr error // returned immediately by Connect when set
	messages   []twitch.PrivateMessage
	stop       chan struct{}
	stopOnce   sync.Once
	active     bool
}

func (f *fakeClient) OnConnect(cb func()) { f.onConnect = cb }

func (f *fakeClient) OnPrivateMessage(cb func(twitch.PrivateMessage)) { f.onMessage = cb }

func (f *fakeClient) Join(channels ...string) { f.joined = append(f.joined, channels...) }

func (f *fakeClient) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.active = true
	f.mu.Unlock()
	f.onConnect()
	for _, m := range f.messages {
		f.onMessage(m)
	}
	<-f.stop
	return twitch.ErrClientDisconnected
}

func (f *fakeClient) Disconnect() error {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if !active {
		return errors.New("connection not open")
	}
	f.stopOnce.Do(func() { close(f.stop) })
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	script  []func(*fakeClient)
	made    chan *fakeClient
}

func newFakeFactory(script ...func(*fakeClient)) *fakeFactory {
	return &fakeFactory{script: script, made: make(chan *fakeClient, 16)}
}

func (ff *fakeFactory) New(addr, username, password string) ircClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	c := &fakeClient{password: password, stop: make(chan struct{})}
	if i := len(ff.clients); i < len(ff.script) {
		ff.script[i](c)
	}
	ff.clients = append(ff.clients, c)
	ff.made <- c
	return c
}

func newTestListener(cache *lastmsg.Cache, ff *fakeFactory) *Listener {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc"})
	l := NewListener("#Alx_N_Smith", "alx_n_smith", tokens, NewIngester(cache), time.Millisecond)
	l.initialBackoff = time.Millisecond
	l.newClient = ff.New
	return l
}

func privmsg(user, text string) twitch.PrivateMessage {
	return twitch.PrivateMessage{
		User:    twitch.User{Name: user, DisplayName: user},
		Message: text,
		Channel: "alx_n_smith",
	}
}

func TestListenerDispatchesMessages(t *testing.T) {
	cache := lastmsg.New()
	ff := newFakeFactory(func(c *fakeClient) {
		c.messages = []twitch.PrivateMessage{
			privmsg("alice", "hi there"),
			privmsg("alx_n_smith", "my own message"),
		}
	})
	l := newTestListener(cache, ff)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var c *fakeClient
	select {
	case c = <-ff.made:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never created a client")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !l.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !l.Ready() {
		t.Fatal("listener never became ready")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() returned %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if len(c.joined) != 1 || c.joined[0] != "alx_n_smith" {
		t.Errorf("joined %v, want [alx_n_smith]", c.joined)
	}
	if c.password != "oauth:abc" {
		t.Errorf("password = %q, want oauth:abc", c.password)
	}
	rec, ok := cache.Snapshot()
	if !ok {
		t.Fatal("no message stored")
	}
	if rec.Author != "alice" || rec.Text != "hi there" {
		t.Errorf("stored %+v, want alice's message (own message must be dropped)", rec)
	}
}

func TestListenerReconnectsAfterFailure(t *testing.T) {
	cache := lastmsg.New()
	ff := newFakeFactory(
		func(c *fakeClient) { c.connectErr = twitch.ErrLoginAuthenticationFailed },
		func(c *fakeClient) { c.messages = []twitch.PrivateMessage{privmsg("bob", "back")} },
	)
	l := newTestListener(cache, ff)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for cache.Read() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got, want := cache.Read(), lastmsg.FreshPrefix+"bob: back"; got != want {
		t.Fatalf("Read() = %q, want %q", got, want)
	}

	cancel()
	<-done
	ff.mu.Lock()
	n := len(ff.clients)
	ff.mu.Unlock()
	if n < 2 {
		t.Errorf("clients created = %d, want >= 2", n)
	}
}

type failingTokens struct{}

func (failingTokens) Token() (*oauth2.Token, error) { return nil, errors.New("refresh rejected") }

func TestListenerRetriesTokenErrors(t *testing.T) {
	ff := newFakeFactory()
	l := NewListener("chan", "bot", failingTokens{}, NewIngester(lastmsg.New()), time.Millisecond)
	l.initialBackoff = time.Millisecond
	l.newClient = ff.New

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil after ctx deadline", err)
	}
	if l.Ready() {
		t.Error("listener reported ready without a connection")
	}
	if len(ff.clients) != 0 {
		t.Errorf("created %d clients without a token", len(ff.clients))
	}
}

func TestListenerRetriesStalledTokenEndpoint(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthTokenHang()

	tokens, err := twitchapi.Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "refresh-1",
		TokenURL:     mock.URL + "/oauth2/token",
		HTTPClient:   &http.Client{Timeout: 50 * time.Millisecond},
	}.TokenSource(context.Background())
	if err != nil {
		t.Fatalf("TokenSource() error = %v", err)
	}

	ff := newFakeFactory()
	l := NewListener("chan", "bot", tokens, NewIngester(lastmsg.New()), 10*time.Millisecond)
	l.initialBackoff = time.Millisecond
	l.newClient = ff.New

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for mock.Calls("/oauth2/token") < 2 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("token endpoint calls = %d after 5s, want retries", mock.Calls("/oauth2/token"))
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if l.Ready() {
		t.Error("listener reported ready without a token")
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.clients) != 0 {
		t.Errorf("created %d clients without a token", len(ff.clients))
	}
}

func TestListenerRunReturnsWhileTokenFetchBlocks(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	ff := newFakeFactory()
	l := NewListener("chan", "bot", blockingTokens(release), NewIngester(lastmsg.New()), time.Millisecond)
	l.newClient = ff.New

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() blocked on token fetch after cancel")
	}
}

type blockingTokens chan struct{}

func (b blockingTokens) Token() (*oauth2.Token, error) {
	<-b
	return nil, errors.New("released")
}

func TestHandlePrivateMessageOtherChannel(t *testing.T) {
	cache := lastmsg.New()
	l := newTestListener(cache, newFakeFactory())
	msg := privmsg("alice", "elsewhere")
	msg.Channel = "someone_else"
	l.handlePrivateMessage(msg)
	if _, ok := cache.Snapshot(); ok {
		t.Error("message from another channel was stored")
	}
}

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantPort int
	}{
		{"irc.chat.twitch.tv:6697", "irc.chat.twitch.tv", 6697},
		{"localhost:abc", "localhost", 0},
		{"nohost", "nohost", 0},
	}
	for _, tt := range tests {
		host, port := splitAddr(tt.in)
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("splitAddr(%q) = %q,%d want %q,%d", tt.in, host, port, tt.wantHost, tt.wantPort)
		}
	}
}
