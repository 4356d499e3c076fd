package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

func provisional(id, content string) model.Message {
	return model.Message{
		ID:             id,
		ClientID:       id,
		ConversationID: "c-1",
		SenderID:       "u-1",
		Content:        content,
		Attachments:    []model.Attachment{{Name: "pin.jpg", Preview: "blob:local/1"}},
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestThread_PushConfirmsProvisional(t *testing.T) {
	th := NewThread("c-1")
	th.AddProvisional(provisional("temp-1700000000000", "Xin chào"))

	th.Receive(model.Message{ID: "m-501", ClientID: "temp-1700000000000", ConversationID: "c-1", SenderID: "u-1", Content: "Xin chào"})

	msgs := th.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-501", msgs[0].ID)
	assert.Equal(t, model.MessageSent, msgs[0].Status)
	assert.Equal(t, "blob:local/1", msgs[0].Attachments[0].Preview, "local previews survive until the server sends attachments")
}

func TestThread_ArrivalOrderConverges(t *testing.T) {
	stored := model.Message{ID: "m-7", ConversationID: "c-1", SenderID: "u-1", Content: "Pin sạc chậm"}

	tests := []struct {
		name string
		run  func(th *Thread)
	}{
		{"push before response", func(th *Thread) {
			th.Receive(stored)
			th.Ack("temp-1", &stored)
		}},
		{"response before push", func(th *Thread) {
			th.Ack("temp-1", &stored)
			th.Receive(stored)
		}},
		{"acknowledged without body then push", func(th *Thread) {
			th.Ack("temp-1", nil)
			th.Receive(stored)
		}},
		{"duplicate push deliveries", func(th *Thread) {
			th.Receive(stored)
			th.Receive(stored)
			th.Ack("temp-1", &stored)
			th.Receive(stored)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThread("c-1")
			th.AddProvisional(provisional("temp-1", "Pin sạc chậm"))

			tt.run(th)

			msgs := th.Messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, "m-7", msgs[0].ID)
			assert.Equal(t, model.MessageSent, msgs[0].Status)
		})
	}
}

func TestThread_IdenticalContentMessagesStayDistinct(t *testing.T) {
	th := NewThread("c-1")
	th.AddProvisional(provisional("temp-1", "ok"))
	th.AddProvisional(provisional("temp-2", "ok"))

	// The second message's push copy arrives first and carries no client ID.
	th.Receive(model.Message{ID: "m-2", ConversationID: "c-1", SenderID: "u-1", Content: "ok"})
	th.Ack("temp-1", &model.Message{ID: "m-1", SenderID: "u-1", Content: "ok"})
	th.Ack("temp-2", &model.Message{ID: "m-2", SenderID: "u-1", Content: "ok"})
	th.Receive(model.Message{ID: "m-1", ConversationID: "c-1", SenderID: "u-1", Content: "ok"})

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	assert.ElementsMatch(t, []string{"m-1", "m-2"}, ids(msgs))
}

func TestThread_OtherSendersAndConversations(t *testing.T) {
	th := NewThread("c-1")
	th.AddProvisional(provisional("temp-1", "hi"))

	th.Receive(model.Message{ID: "m-1", ConversationID: "c-1", SenderID: "staff-1", Content: "hi"})
	th.Receive(model.Message{ID: "m-2", ConversationID: "c-2", SenderID: "u-1", Content: "hi"})

	assert.Equal(t, []string{"temp-1", "m-1"}, ids(th.Messages()))
}

func TestThread_FailAndResend(t *testing.T) {
	th := NewThread("c-1")
	th.AddProvisional(provisional("temp-1", "hello"))

	_, err := th.Resend("temp-1")
	assert.ErrorIs(t, err, ErrUnknownMessage, "only failed messages can be re-sent")

	th.Fail("temp-1", "Đã có lỗi xảy ra, vui lòng thử lại")
	msg, ok := th.Find("temp-1")
	require.True(t, ok)
	assert.Equal(t, model.MessageFailed, msg.Status)
	assert.NotEmpty(t, msg.Error)

	msg, err = th.Resend("temp-1")
	require.NoError(t, err)
	assert.Equal(t, model.MessageSending, msg.Status)
	assert.Equal(t, "temp-1", msg.ClientID)
	assert.Empty(t, msg.Error)

	_, err = th.Resend("temp-404")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestThread_FailAfterConfirmationIsIgnored(t *testing.T) {
	th := NewThread("c-1")
	th.AddProvisional(provisional("temp-1", "hello"))
	th.Receive(model.Message{ID: "m-1", ClientID: "temp-1", SenderID: "u-1", Content: "hello"})

	th.Fail("temp-1", "timeout")

	msgs := th.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageSent, msgs[0].Status)
}

func TestThread_LoadKeepsPendingMessages(t *testing.T) {
	th := NewThread("c-1")
	th.AddProvisional(provisional("temp-1", "a"))
	th.AddProvisional(provisional("temp-2", "b"))

	th.Load([]model.Message{
		{ID: "m-0", SenderID: "staff-1", Content: "welcome"},
		{ID: "m-1", ClientID: "temp-1", SenderID: "u-1", Content: "a"},
	})

	assert.Equal(t, []string{"m-0", "m-1", "temp-2"}, ids(th.Messages()))
}

func TestThread_NewTempIDIsUnique(t *testing.T) {
	th := NewThread("c-1")
	now := time.UnixMilli(1700000000000)

	first := th.NewTempID(now)
	second := th.NewTempID(now)
	assert.Equal(t, "temp-1700000000000", first)
	assert.Equal(t, "temp-1700000000000-1", second)
	assert.Equal(t, "temp-1700000000001", th.NewTempID(now.Add(time.Millisecond)))
}

func TestThread_OnChange(t *testing.T) {
	th := NewThread("c-1")
	var seen [][]model.Message
	remove := th.OnChange(func(m []model.Message) { seen = append(seen, m) })

	th.AddProvisional(provisional("temp-1", "a"))
	remove()
	th.AddProvisional(provisional("temp-2", "b"))

	require.Len(t, seen, 1)
	assert.Len(t, seen[0], 1)
}
