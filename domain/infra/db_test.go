package infra

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/whisperbox/whisperbox/domain/model"
)

func newTestDataBase(t *testing.T) *DataBase {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "test.db"))
	db, err := NewDataBase()
	assert.NoError(t, err)
	return db
}

func TestDataBase_CreateQuestion(t *testing.T) {
	db := newTestDataBase(t)

	first := &model.Question{UserID: 100, QuestionText: "first"}
	second := &model.Question{UserID: 101, QuestionText: "second"}
	assert.NoError(t, db.CreateQuestion(first))
	assert.NoError(t, db.CreateQuestion(second))

	assert.Equal(t, uint(1), first.ID)
	assert.Equal(t, uint(2), second.ID)
	assert.False(t, first.AskedAt.IsZero())
	assert.False(t, first.IsAnswered)
}

func TestDataBase_MarkAnswered_ConcurrentRace(t *testing.T) {
	db := newTestDataBase(t)

	q := &model.Question{UserID: 100, QuestionText: "who wins?"}
	assert.NoError(t, db.CreateQuestion(q))
	assert.NoError(t, db.RecordAdminDelivery(q.ID, 1, 10))

	// 同じ質問への同時回答。勝者はちょうど1人でなければならない
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- db.MarkAnswered(q.ID, fmt.Sprintf("answer from admin %d", i))
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch err {
		case nil:
			wins++
		case ErrAlreadyAnswered:
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	got, err := db.ResolveByAdminMessage(1, 10)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.True(t, got.IsAnswered)
		assert.NotNil(t, got.AnsweredAt)
		assert.Contains(t, got.AnswerText, "answer from admin")
	}

	// 二重回答は常に拒否される
	assert.Equal(t, ErrAlreadyAnswered, db.MarkAnswered(q.ID, "too late"))
}

func TestDataBase_MarkAnswered_NotFound(t *testing.T) {
	db := newTestDataBase(t)
	assert.Equal(t, ErrQuestionNotFound, db.MarkAnswered(12345, "answering a ghost"))
}

func TestDataBase_ResolveByAdminMessage_CrossAdmin(t *testing.T) {
	db := newTestDataBase(t)

	q1 := &model.Question{UserID: 100, QuestionText: "for admin one"}
	q2 := &model.Question{UserID: 101, QuestionText: "for admin two"}
	assert.NoError(t, db.CreateQuestion(q1))
	assert.NoError(t, db.CreateQuestion(q2))

	// 同じメッセージ番号でも管理者が違えば別の質問
	assert.NoError(t, db.RecordAdminDelivery(q1.ID, 1, 42))
	assert.NoError(t, db.RecordAdminDelivery(q2.ID, 2, 42))

	got1, err := db.ResolveByAdminMessage(1, 42)
	assert.NoError(t, err)
	if assert.NotNil(t, got1) {
		assert.Equal(t, q1.ID, got1.ID)
	}

	got2, err := db.ResolveByAdminMessage(2, 42)
	assert.NoError(t, err)
	if assert.NotNil(t, got2) {
		assert.Equal(t, q2.ID, got2.ID)
	}

	missing, err := db.ResolveByAdminMessage(3, 42)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDataBase_RecordAdminDelivery_Idempotent(t *testing.T) {
	db := newTestDataBase(t)

	q := &model.Question{UserID: 100, QuestionText: "recorded once"}
	assert.NoError(t, db.CreateQuestion(q))

	assert.NoError(t, db.RecordAdminDelivery(q.ID, 1, 10))
	assert.NoError(t, db.RecordAdminDelivery(q.ID, 1, 10))

	var count int64
	assert.NoError(t, db.db.Model(&model.AdminDelivery{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDataBase_GetPendingQuestions(t *testing.T) {
	db := newTestDataBase(t)

	base := time.Now().Add(-time.Hour)
	for i := 1; i <= 5; i++ {
		q := &model.Question{
			UserID:       100,
			QuestionText: fmt.Sprintf("question %d", i),
			AskedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		assert.NoError(t, db.CreateQuestion(q))
	}
	assert.NoError(t, db.MarkAnswered(3, "handled"))

	pending, err := db.GetPendingQuestions(2, 0)
	assert.NoError(t, err)
	if assert.Len(t, pending, 2) {
		assert.Equal(t, "question 5", pending[0].QuestionText)
		assert.Equal(t, "question 4", pending[1].QuestionText)
	}

	rest, err := db.GetPendingQuestions(10, 2)
	assert.NoError(t, err)
	if assert.Len(t, rest, 2) {
		assert.Equal(t, "question 2", rest[0].QuestionText)
		assert.Equal(t, "question 1", rest[1].QuestionText)
	}
}

func TestDataBase_GetStats(t *testing.T) {
	db := newTestDataBase(t)

	stats, err := db.GetStats()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)

	for i := 1; i <= 3; i++ {
		assert.NoError(t, db.CreateQuestion(&model.Question{UserID: 100, QuestionText: fmt.Sprintf("q%d", i)}))
	}
	assert.NoError(t, db.MarkAnswered(1, "done"))

	stats, err = db.GetStats()
	assert.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Answered)
	assert.Equal(t, int64(2), stats.Pending)
	assert.InDelta(t, 33.3, stats.AnsweredPct(), 0.1)
}
