package client

import (
	"context"
	"time"
)

// ConversationClient manages live sessions with the conversation/video
// provider used for interviews.
type ConversationClient struct {
	httpClient
}

func NewConversationClient(base string, timeout time.Duration) *ConversationClient {
	return &ConversationClient{newHTTPClient(base, "conversation", timeout)}
}

type createConversationRequest struct {
	UserID string `json:"user_id"`
}

type createConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

func (c *ConversationClient) CreateConversation(ctx context.Context, userID string) (string, error) {
	var out createConversationResponse
	if err := c.postJSON(ctx, "/v1/conversations", createConversationRequest{UserID: userID}, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

func (c *ConversationClient) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.delete(ctx, "/v1/conversations/"+conversationID)
}
