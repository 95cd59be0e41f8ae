// Package chats groups the conversation data model: roles, messages, and the
// chat container that holds an ordered conversation history.
//
// Subpackages:
//   - role: sender roles (system, user, assistant, tool)
//   - message: a single role-tagged text message
//   - chat: an ordered, mutable conversation container
package chats
