// Package protocol defines the event contract between a chat client and the
// hub. Every frame is an Envelope whose Type names one of the events below.
package protocol

// Client -> hub.
const (
	EventJoinChat        = "join-chat"
	EventLeaveChat       = "leave-chat"
	EventSendMessage     = "send-message"
	EventTypingStart     = "typing-start"
	EventTypingStop      = "typing-stop"
	EventReadMessage     = "read-message"
	EventReactToMessage  = "react-to-message"
	EventCreateGroupChat = "create-group-chat"
)

// Hub -> client.
const (
	EventUserChats         = "user-chats"
	EventChatMessages      = "chat-messages"
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventMessageRead       = "message-read"
	EventMessageReaction   = "message-reaction"
	EventUserStatusChange  = "user-status-change"
	EventNewChat           = "new-chat"
	EventError             = "error"
)

const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)

// Websocket close codes the hub uses to tell a client not to come back.
const (
	// CloseSessionReplaced: the same user opened a newer connection.
	CloseSessionReplaced = 4001
	// CloseSessionRevoked: the session was terminated elsewhere.
	CloseSessionRevoked = 4003
	// CloseUnauthorized: the credential was rejected after the upgrade.
	CloseUnauthorized = 4401
)
