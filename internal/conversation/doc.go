// Package conversation holds the conversation-level data model: the
// conversation identity, its ordered messages, stream connection status, and
// the derived queue state that summarizes all executions in a conversation.
//
// The types here are deliberately passive. The stateful per-conversation
// aggregate lives in the runtime package; snapshots of this model live in
// the snapshot package.
package conversation
