package deltachat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/selfreportbot/internal/chat"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want chat.Event
	}{
		{name: "info", raw: `{"kind":"Info","msg":"connected"}`, want: chat.InfoEvent{Msg: "connected"}},
		{name: "warning", raw: `{"kind":"Warning","msg":"slow"}`, want: chat.WarningEvent{Msg: "slow"}},
		{name: "error", raw: `{"kind":"Error","msg":"failed"}`, want: chat.ErrorEvent{Msg: "failed"}},
		{name: "delivered", raw: `{"kind":"MsgDelivered","chatId":12,"msgId":34}`, want: chat.MsgDeliveredEvent{ChatID: 12, MsgID: 34}},
		{name: "incoming", raw: `{"kind":"IncomingMsg","chatId":12,"msgId":35}`, want: chat.NewMessageEvent{ChatID: 12, MsgID: 35}},
		{
			name: "other",
			raw:  `{"kind":"ConnectivityChanged"}`,
			want: chat.UnknownEvent{Kind: "ConnectivityChanged", Raw: `{"kind":"ConnectivityChanged"}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := decodeEvent(rawEvent{ContextID: 3, Event: json.RawMessage(tt.raw)})
			require.NoError(t, err)
			require.Equal(t, chat.AccountID(3), env.Account)
			require.Equal(t, tt.want, env.Event)
		})
	}

	_, err := decodeEvent(rawEvent{Event: json.RawMessage(`[]`)})
	require.Error(t, err)
}

func TestClientMethods(t *testing.T) {
	s := newFakeServer(t)
	s.reply("misc_send_text_message", 77)
	s.reply("send_reaction", 78)
	s.reply("get_chat_contacts", []int{1, 10, 11})
	s.reply("delete_chat", nil)
	s.reply("delete_contact", nil)
	s.reply("set_config", nil)
	s.reply("get_info", map[string]string{"deltachat_core_version": "v2.0.0"})
	s.reply("get_all_account_ids", []int{1})
	c := s.client()
	ctx := context.Background()

	id, err := c.SendText(ctx, 1, 42, "thanks")
	require.NoError(t, err)
	require.Equal(t, chat.MessageID(77), id)

	require.NoError(t, c.SendReaction(ctx, 1, &chat.Message{ID: 5}, "❤️"))

	contacts, err := c.GetChatContacts(ctx, 1, 42)
	require.NoError(t, err)
	require.Equal(t, []chat.ContactID{1, 10, 11}, contacts)

	require.NoError(t, c.DeleteChat(ctx, 1, 42))
	require.NoError(t, c.DeleteContact(ctx, 1, 10))
	require.NoError(t, c.SetConfig(ctx, 1, "delete_server_after", "1"))

	info, err := c.Info(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "v2.0.0", info["deltachat_core_version"])

	accounts, err := c.AccountIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []chat.AccountID{1}, accounts)

	var methods []string
	for _, call := range s.Calls() {
		methods = append(methods, call.Method)
	}
	require.Equal(t, []string{
		"misc_send_text_message", "send_reaction", "get_chat_contacts", "delete_chat",
		"delete_contact", "set_config", "get_info", "get_all_account_ids",
	}, methods)

	reaction := s.Calls()[1]
	require.JSONEq(t, `5`, string(reaction.Params[1]))
	require.JSONEq(t, `["❤️"]`, string(reaction.Params[2]))
	setConfig := s.Calls()[5]
	require.JSONEq(t, `"1"`, string(setConfig.Params[2]))
}

func TestGetMessage(t *testing.T) {
	s := newFakeServer(t)
	s.handle("get_message", func(params []json.RawMessage) (any, *RPCError) {
		var id int
		_ = json.Unmarshal(params[1], &id)
		if id == 404 {
			return nil, nil
		}
		return map[string]any{
			"id": id, "chatId": 42, "fromId": 10, "text": "",
			"file": "/blobs/statistics.txt", "fileName": "statistics.txt", "isInfo": false,
		}, nil
	})
	c := s.client()

	msg, err := c.GetMessage(context.Background(), 1, 7)
	require.NoError(t, err)
	require.Equal(t, &chat.Message{
		ID: 7, ChatID: 42, FromID: 10, File: "/blobs/statistics.txt", FileName: "statistics.txt",
	}, msg)

	_, err = c.GetMessage(context.Background(), 1, 404)
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestRunForwardsEvents(t *testing.T) {
	s := newFakeServer(t)
	s.reply("start_io_for_all_accounts", nil)
	s.reply("stop_io_for_all_accounts", nil)
	s.handle("get_message", func(params []json.RawMessage) (any, *RPCError) {
		var id int
		_ = json.Unmarshal(params[1], &id)
		from := 10
		if id == 2 {
			from = 1
		}
		return map[string]any{"id": id, "chatId": 42, "fromId": from, "text": "hi", "isInfo": id == 3}, nil
	})
	s.queueEvents(
		`{"contextId":1,"event":{"kind":"Info","msg":"hello"}}`,
		`{"contextId":1,"event":{"kind":"IncomingMsg","chatId":42,"msgId":2}}`,
		`{"contextId":1,"event":{"kind":"IncomingMsg","chatId":42,"msgId":3}}`,
		`{"contextId":1,"event":{"kind":"IncomingMsg","chatId":42,"msgId":4}}`,
		`{"contextId":1,"event":{"kind":"MsgDelivered","chatId":42,"msgId":5}}`,
	)
	c := s.client()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var got []chat.Event
	for len(got) < 3 {
		select {
		case env := <-c.Events():
			got = append(got, env.Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}

	require.Equal(t, chat.InfoEvent{Msg: "hello"}, got[0])
	incoming, ok := got[1].(chat.NewMessageEvent)
	require.True(t, ok, "special sender and info messages are filtered")
	require.Equal(t, chat.MessageID(4), incoming.MsgID)
	require.NotNil(t, incoming.Msg)
	require.Equal(t, chat.MsgDeliveredEvent{ChatID: 42, MsgID: 5}, got[2])

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	_, open := <-c.Events()
	require.False(t, open)
}
