package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pmartland/askpdf/internal/backend"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Greeting seeds every fresh transcript before any interaction.
const Greeting = "Hello! I'm ready to help you understand this document. Ask me anything about its contents!"

// apology is the only failure text ever shown in the transcript. The real
// error is logged; raw backend or network messages never reach the user.
const apology = "I'm sorry, I encountered an error processing your question. Please try again."

// Message is one transcript entry. Messages are never mutated after append.
type Message struct {
	ID        string
	Role      string
	Content   string
	Citations []backend.Citation
}

// Sender is the part of the backend client the chat needs.
type Sender interface {
	SendChatMessage(ctx context.Context, message, documentID string) (*backend.ChatResponse, error)
}

// Chat holds the ordered transcript for one document. At most one send is in
// flight at a time; Submit is a no-op while a previous send is pending.
type Chat struct {
	mu         sync.Mutex
	documentID string
	sender     Sender
	log        *logrus.Logger
	messages   []Message
	pending    bool
}

func New(documentID string, sender Sender, log *logrus.Logger) *Chat {
	return &Chat{
		documentID: documentID,
		sender:     sender,
		log:        log,
		messages: []Message{{
			ID:      uuid.NewString(),
			Role:    RoleAssistant,
			Content: Greeting,
		}},
	}
}

// DocumentID returns the document this transcript is scoped to.
func (c *Chat) DocumentID() string {
	return c.documentID
}

// Messages returns a snapshot of the transcript in append order.
func (c *Chat) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Pending reports whether a send is in flight.
func (c *Chat) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Submit appends the user's text to the transcript, sends it to the backend,
// and appends the assistant's answer. Blank text and submissions while a
// send is pending are ignored. The user message is appended before the
// network call so it is visible immediately; the assistant reply (or the
// apology on failure) follows when the call completes.
func (c *Chat) Submit(ctx context.Context, text string) {
	c.mu.Lock()
	if strings.TrimSpace(text) == "" || c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = true
	c.messages = append(c.messages, Message{
		ID:      uuid.NewString(),
		Role:    RoleUser,
		Content: text,
	})
	c.mu.Unlock()

	resp, err := c.sender.SendChatMessage(ctx, text, c.documentID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err != nil {
		c.log.WithField("documentId", c.documentID).Errorf("chat request failed: %v", err)
		c.messages = append(c.messages, Message{
			ID:      uuid.NewString(),
			Role:    RoleAssistant,
			Content: apology,
		})
		return
	}

	citations := resp.Citations
	if citations == nil {
		citations = []backend.Citation{}
	}
	c.messages = append(c.messages, Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   resp.Response,
		Citations: citations,
	})
}
