package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"

	"github.com/edgard/selfreportbot/internal/chat"
	"github.com/edgard/selfreportbot/internal/logger"
)

func newTestTransport(t *testing.T, maxBytes int64, client *http.Client) *Transport {
	t.Helper()
	files, err := newFileCache(filepath.Join(t.TempDir(), "cache"), maxBytes, "", client)
	require.NoError(t, err)
	return newTransport(files, logger.Discard())
}

func TestToChatMessage(t *testing.T) {
	got := toChatMessage(&models.Message{
		ID:       12,
		Chat:     models.Chat{ID: 34},
		From:     &models.User{ID: 56},
		Caption:  "core_version 1.42.0",
		Document: &models.Document{FileID: "f1", FileName: "statistics.txt"},
	})
	require.Equal(t, &chat.Message{
		ID:       12,
		ChatID:   34,
		FromID:   56,
		Text:     "core_version 1.42.0",
		FileName: "statistics.txt",
	}, got)

	plain := toChatMessage(&models.Message{ID: 1, Chat: models.Chat{ID: 2}, Text: "hello", Caption: "ignored"})
	require.Equal(t, "hello", plain.Text)
	require.Zero(t, plain.FromID)
}

func TestReactionTypes(t *testing.T) {
	got := reactionTypes([]string{"❤️", "👍", ""})
	require.Len(t, got, 2)
	require.Equal(t, models.ReactionTypeTypeEmoji, got[0].Type)
	require.Equal(t, "❤", got[0].ReactionTypeEmoji.Emoji)
	require.Equal(t, "👍", got[1].ReactionTypeEmoji.Emoji)
}

func TestUnsupportedOperations(t *testing.T) {
	tr := newTestTransport(t, 0, http.DefaultClient)
	ctx := context.Background()

	_, err := tr.GetChatContacts(ctx, Account, 1)
	require.ErrorIs(t, err, chat.ErrUnsupported)
	require.ErrorIs(t, tr.DeleteChat(ctx, Account, 1), chat.ErrUnsupported)
	require.ErrorIs(t, tr.DeleteContact(ctx, Account, 10), chat.ErrUnsupported)
	require.ErrorIs(t, tr.SetConfig(ctx, Account, "delete_server_after", "1"), chat.ErrUnsupported)

	accounts, err := tr.AccountIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []chat.AccountID{Account}, accounts)
}

func TestPublishAndGetMessage(t *testing.T) {
	tr := newTestTransport(t, 0, http.DefaultClient)
	ctx := context.Background()

	msg := &chat.Message{ID: 5, ChatID: 9, Text: "hi"}
	tr.publish(ctx, msg)

	env := <-tr.Events()
	require.Equal(t, Account, env.Account)
	require.Equal(t, chat.NewMessageEvent{ChatID: 9, MsgID: 5, Msg: msg}, env.Event)

	got, err := tr.GetMessage(ctx, Account, 5)
	require.NoError(t, err)
	require.Same(t, msg, got)

	_, err = tr.GetMessage(ctx, Account, 6)
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestMessageCacheIsBounded(t *testing.T) {
	tr := newTestTransport(t, 0, http.DefaultClient)
	for i := 1; i <= messageCacheSize+10; i++ {
		tr.remember(&chat.Message{ID: chat.MessageID(i)})
	}
	require.Len(t, tr.messages, messageCacheSize)
	_, err := tr.GetMessage(context.Background(), Account, 1)
	require.ErrorIs(t, err, chat.ErrNotFound)
	_, err = tr.GetMessage(context.Background(), Account, messageCacheSize+10)
	require.NoError(t, err)
}

func TestFetchLimitsSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	tr := newTestTransport(t, 10, srv.Client())

	path, err := tr.files.fetch(context.Background(), srv.URL+"/documents/file_1.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 11)
	require.True(t, strings.HasPrefix(filepath.Base(path), cacheFilePrefix))

	_, err = tr.files.fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	entries, err := os.ReadDir(tr.files.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "failed downloads leave no file behind")
}

func TestPruneCache(t *testing.T) {
	tr := newTestTransport(t, 0, http.DefaultClient)
	dir := tr.files.dir

	old := filepath.Join(dir, cacheFilePrefix+"old")
	fresh := filepath.Join(dir, cacheFilePrefix+"fresh")
	foreign := filepath.Join(dir, "keep.txt")
	for _, p := range []string{old, fresh, foreign} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(foreign, past, past))

	removed, err := tr.PruneCache(time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	_, err = os.Stat(old)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
	_, err = os.Stat(foreign)
	require.NoError(t, err)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Options{CacheDir: t.TempDir()}, nil)
	require.Error(t, err)
}

func TestTokenPrefix(t *testing.T) {
	require.Equal(t, "12345678...", tokenPrefix("12345678:secret"))
	require.Equal(t, "...", tokenPrefix("short"))
}

func TestFetchErrorOmitsToken(t *testing.T) {
	const token = "123456:SECRETTOKEN"
	files, err := newFileCache(t.TempDir(), 10, "http://127.0.0.1:1/file/bot"+token, http.DefaultClient)
	require.NoError(t, err)

	_, err = files.fetch(context.Background(), files.baseURL+"/documents/file_1.txt")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "SECRETTOKEN")
	require.NotContains(t, err.Error(), "/file/bot")
}

func TestStripURL(t *testing.T) {
	cause := errors.New("connection refused")
	err := stripURL(&url.Error{Op: "Get", URL: "https://api.telegram.org/bot123:SECRET/getFile", Err: cause})
	require.ErrorIs(t, err, cause)
	require.Equal(t, "Get request: connection refused", err.Error())

	plain := errors.New("bad request")
	require.Same(t, plain, stripURL(plain))
}
