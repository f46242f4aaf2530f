package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnconfiguredIsNop(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := New("", 42, log)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, n)

	n, err = New("token", 0, log)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, n)

	n.Notify(context.Background(), "ignored")
}

func TestTelegram_Notify(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"ops","username":"ops_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			sent = append(sent, r.Form.Get("chat_id")+":"+r.Form.Get("text"))
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":99,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	n, err := NewWithEndpoint("token", srv.URL+"/bot%s/%s", 99, srv.Client(), log)
	require.NoError(t, err)

	n.Notify(context.Background(), "billing write failed")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"99:billing write failed"}, sent)
}
