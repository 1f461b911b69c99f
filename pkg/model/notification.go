package model

import "time"

// NotificationKind separates success and failure notices on the same stream.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationFailure NotificationKind = "failure"
)

// Topic classifies what a notification is about. Webhook events use the same
// names.
type Topic string

const (
	TopicLockCreated    Topic = "lock.created"
	TopicLockWithdrawn  Topic = "lock.withdrawn"
	TopicCreateFailed   Topic = "lock.create_failed"
	TopicWithdrawFailed Topic = "lock.withdraw_failed"
	TopicRefreshFailed  Topic = "lock.refresh_failed"
	TopicLockAnomaly    Topic = "lock.anomaly"
	TopicInvalidInput   Topic = "lock.invalid_input"
)

// Notification is a one-shot user-facing notice.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Topic       Topic            `json:"topic,omitempty"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Code        string           `json:"code,omitempty"`
	Owner       string           `json:"owner,omitempty"`
	LockID      string           `json:"lock_id,omitempty"`
	At          time.Time        `json:"at"`
}

// HashValue is a hex-encoded SHA-256 digest.
type HashValue string

// JournalRecord is a single line in the notification journal (JSONL format).
type JournalRecord struct {
	Seq          int64        `json:"seq"`
	Notification Notification `json:"notification"`
	PrevHash     HashValue    `json:"prev_hash"`
	RecordHash   HashValue    `json:"record_hash"`
}
