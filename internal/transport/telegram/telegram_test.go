package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	kit "zeitslot/internal/transport"
	logx "zeitslot/pkg/logx"
)

type apiCall struct {
	method string
	body   string
}

func fakeBotAPI(t *testing.T) (*httptest.Server, func() []apiCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []apiCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		parts := strings.Split(r.URL.Path, "/")
		mu.Lock()
		calls = append(calls, apiCall{method: parts[len(parts)-1], body: string(b)})
		n := len(calls)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"message_id": 100 + n,
				"date":       1,
				"chat":       map[string]any{"id": -1001, "type": "supergroup"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []apiCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]apiCall(nil), calls...)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestSendTextAndPoll(t *testing.T) {
	t.Parallel()
	srv, calls := fakeBotAPI(t)
	a, err := New(Config{Token: "123:abc", APIURL: srv.URL, Sanitize: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	to := kit.ChatTarget{ChatID: -1001}

	ref, err := a.SendText(ctx, to, `<b>hi</b><script>x</script>`, &kit.SendOptions{ParseMode: "HTML"})
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if ref.MessageID != 101 {
		t.Fatalf("MessageID = %d, want 101", ref.MessageID)
	}
	if _, err := a.SendPoll(ctx, to, "Useful?", []string{"yes", "no"}); err != nil {
		t.Fatalf("SendPoll: %v", err)
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("calls = %d, want 2", len(got))
	}
	if got[0].method != "sendMessage" || strings.Contains(got[0].body, "script") {
		t.Fatalf("unexpected first call: %+v", got[0])
	}
	if got[1].method != "sendPoll" || !strings.Contains(got[1].body, "Useful?") {
		t.Fatalf("unexpected second call: %+v", got[1])
	}
}

func TestSendPollValidatesOptions(t *testing.T) {
	t.Parallel()
	a, err := New(Config{Token: "123:abc", APIURL: "http://127.0.0.1:1"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.SendPoll(context.Background(), kit.ChatTarget{ChatID: 1}, "q", []string{"only"}); err == nil {
		t.Fatal("expected error for a single option")
	}
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %q", got)
	}
	long := strings.Repeat("line\n", 30)
	chunks := splitTelegramText(long, 40, "")
	for _, c := range chunks {
		if len([]rune(c)) > 40 {
			t.Fatalf("chunk too long: %d", len([]rune(c)))
		}
		if strings.HasPrefix(c, "\n") {
			t.Fatalf("chunk starts with newline: %q", c)
		}
	}
	if strings.Join(chunks, "\n") != strings.TrimRight(long, "\n") {
		t.Fatal("chunks do not reassemble")
	}
}

func TestSanitizeHTML(t *testing.T) {
	t.Parallel()
	in := `<b>bold</b> <a href="https://example.com" onclick="x()">link</a> <a href="javascript:alert(1)">bad</a> <img src=x>`
	out := SanitizeHTML(in)
	for _, bad := range []string{"onclick", "javascript", "<img"} {
		if strings.Contains(out, bad) {
			t.Fatalf("sanitized output still contains %q: %s", bad, out)
		}
	}
	for _, good := range []string{"<b>bold</b>", `href="https://example.com"`} {
		if !strings.Contains(out, good) {
			t.Fatalf("sanitized output lost %q: %s", good, out)
		}
	}
}
