package model

import "time"

// Question is one anonymous question and its eventual answer. UserID is the
// Telegram chat the answer goes back to; it never appears in anything sent to
// an administrator.
type Question struct {
	ID              uint   `gorm:"primary_key"`
	UserID          int64  `gorm:"index"`
	OriginMessageID int    // message that created the question, for traceability
	QuestionText    string `gorm:"type:text"`
	AnswerText      string `gorm:"type:text"`
	AskedAt         time.Time
	AnsweredAt      *time.Time
	IsAnswered      bool `gorm:"index"`
}

// AdminDelivery maps one delivered notification (or reply prompt) back to its
// question. Rows are add-only: a recorded (admin_id, message_id) pair is the
// reverse-lookup key for that administrator's replies and is never rewritten.
// Two administrators' message IDs live in independent numbering spaces, hence
// the composite unique index.
type AdminDelivery struct {
	ID         uint   `gorm:"primary_key"`
	QuestionID uint   `gorm:"index"`
	AdminID    int64  `gorm:"unique_index:idx_admin_message"`
	MessageID  int    `gorm:"unique_index:idx_admin_message"`
	CreatedAt  time.Time
}

type Stats struct {
	Total    int64
	Answered int64
	Pending  int64
}

func (s *Stats) AnsweredPct() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Answered) / float64(s.Total) * 100
}
