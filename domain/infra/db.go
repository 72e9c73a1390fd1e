package infra

import (
	"os"
	"path"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/mattn/go-sqlite3"
	"github.com/whisperbox/whisperbox/domain/model"
)

type DataBase struct {
	db *gorm.DB
}

func NewDataBase() (*DataBase, error) {
	var db *gorm.DB
	var err error
	if os.Getenv("DATABASE_URL") != "" {
		db, err = gorm.Open("postgres", os.Getenv("DATABASE_URL"))
	} else {
		dbpath := "./db/whisperbox.db"
		if os.Getenv("DB_PATH") != "" {
			dbpath = os.Getenv("DB_PATH")
		}
		if !path.IsAbs(dbpath) {
			dbpath = path.Join(os.Getenv("PWD"), dbpath)
		}
		db, err = gorm.Open("sqlite3", dbpath)
		if err == nil {
			// sqliteは書き込みが単一なので、コネクションを1本に絞って
			// SQLITE_BUSYを避ける
			db.DB().SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, err
	}
	db.AutoMigrate(&model.Question{})
	db.AutoMigrate(&model.AdminDelivery{})
	return &DataBase{db: db}, nil
}

func (d *DataBase) CreateQuestion(q *model.Question) error {
	if q.AskedAt.IsZero() {
		q.AskedAt = time.Now()
	}
	return d.db.Create(q).Error
}

func (d *DataBase) RecordAdminDelivery(questionID uint, adminID int64, messageID int) error {
	var delivery model.AdminDelivery
	return d.db.Where(model.AdminDelivery{AdminID: adminID, MessageID: messageID}).
		Attrs(model.AdminDelivery{QuestionID: questionID, CreatedAt: time.Now()}).
		FirstOrCreate(&delivery).Error
}

func (d *DataBase) ResolveByAdminMessage(adminID int64, messageID int) (*model.Question, error) {
	var delivery model.AdminDelivery
	err := d.db.Where("admin_id = ? AND message_id = ?", adminID, messageID).First(&delivery).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var question model.Question
	err = d.db.Where("id = ?", delivery.QuestionID).First(&question).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// MarkAnswered は is_answered=false の行だけを更新する。同じ質問への同時回答は
// ここで直列化され、勝者以外は ErrAlreadyAnswered を受け取る。
func (d *DataBase) MarkAnswered(questionID uint, answerText string) error {
	now := time.Now()
	res := d.db.Model(&model.Question{}).
		Where("id = ? AND is_answered = ?", questionID, false).
		Updates(map[string]interface{}{
			"answer_text": answerText,
			"is_answered": true,
			"answered_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var q model.Question
		err := d.db.Where("id = ?", questionID).First(&q).Error
		if err == gorm.ErrRecordNotFound {
			return ErrQuestionNotFound
		}
		if err != nil {
			return err
		}
		return ErrAlreadyAnswered
	}
	return nil
}

func (d *DataBase) GetStats() (*model.Stats, error) {
	var stats model.Stats
	if err := d.db.Model(&model.Question{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := d.db.Model(&model.Question{}).Where("is_answered = ?", true).Count(&stats.Answered).Error; err != nil {
		return nil, err
	}
	stats.Pending = stats.Total - stats.Answered
	return &stats, nil
}

func (d *DataBase) GetPendingQuestions(limit, offset int) ([]model.Question, error) {
	var questions []model.Question
	err := d.db.Where("is_answered = ?", false).
		Order("asked_at desc, id desc").
		Limit(limit).Offset(offset).
		Find(&questions).Error
	return questions, err
}
