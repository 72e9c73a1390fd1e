package infra

import (
	"errors"

	"github.com/whisperbox/whisperbox/domain/model"
)

var (
	// ErrQuestionNotFound is returned when an ID or (admin, message) pair
	// resolves to nothing. Expected during normal operation: the reference
	// may be stale or the row gone.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlreadyAnswered is returned to the loser of a concurrent answer
	// race. The winning reply has already been delivered to the user.
	ErrAlreadyAnswered = errors.New("question already answered")
)

type Datastore interface {
	// 質問を保存してIDを採番する
	CreateQuestion(*model.Question) error
	// 管理者への通知メッセージIDを記録する(同一ペアは冪等)
	RecordAdminDelivery(questionID uint, adminID int64, messageID int) error
	// (adminID, messageID)ペアから質問を逆引きする。見つからなければ (nil, nil)
	ResolveByAdminMessage(adminID int64, messageID int) (*model.Question, error)
	// is_answered=false→true の条件付き更新。競合に敗れたら ErrAlreadyAnswered
	MarkAnswered(questionID uint, answerText string) error
	// 件数レポートを取得する
	GetStats() (*model.Stats, error)
	// 未回答の質問を新しい順に取得する
	GetPendingQuestions(limit, offset int) ([]model.Question, error)
}
