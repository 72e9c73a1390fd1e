package handler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jellydator/ttlcache/v3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/whisperbox/whisperbox/config"
	"github.com/whisperbox/whisperbox/domain/infra"
	"github.com/whisperbox/whisperbox/domain/model"
)

const (
	minQuestionLen = 5
	maxQuestionLen = 4000
	maxAnswerLen   = 4000

	// 1管理者あたりの通知タイムアウト。リトライはしない(重複通知を避ける)
	deliveryTimeout = 15 * time.Second

	pendingPageSize  = 10
	digestBacklogMax = 50
)

type Handler struct {
	api        infra.TelegramAPI
	ds         infra.Datastore
	ai         *infra.OpenAI
	cfg        *config.Config
	statsCache *ttlcache.Cache[string, *model.Stats]
}

func NewHandler(cfg *config.Config) (*Handler, error) {
	var ds infra.Datastore
	var err error
	if os.Getenv("DB_DRIVER") == "dynamodb" {
		ds, err = infra.NewDynamoDB()
		if err != nil {
			return nil, err
		}
	} else {
		ds, err = infra.NewDataBase()
		if err != nil {
			return nil, err
		}
	}

	ai, err := infra.NewOpenAI()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		ds:         ds,
		ai:         ai,
		cfg:        cfg,
		statsCache: ttlcache.New(ttlcache.WithTTL[string, *model.Stats](30 * time.Second)),
	}
	go h.statsCache.Start()
	return h, nil
}

// Handle runs the long-polling loop until ctx is cancelled.
func (h *Handler) Handle(ctx context.Context) error {
	b, err := bot.New(h.cfg.BotToken, bot.WithDefaultHandler(h.handleUpdate))
	if err != nil {
		return err
	}
	h.api = b

	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, h.cmdStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, h.cmdHelp)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypeExact, h.cmdStats)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/pending", bot.MatchTypeExact, h.cmdPending)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/digest", bot.MatchTypeExact, h.cmdDigest)

	b.Start(ctx)
	return nil
}

// handleUpdate classifies every event the registered command handlers did not
// claim: callback actions, admin replies and user questions.
func (h *Handler) handleUpdate(ctx context.Context, _ *bot.Bot, upd *models.Update) {
	switch {
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.Text != "":
		h.handleMessage(ctx, upd.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil || msg.Chat.Type != "private" {
		return
	}
	if strings.HasPrefix(msg.Text, "/") {
		h.send(ctx, msg.Chat.ID, unknownCommandText(), nil)
		return
	}
	if h.cfg.IsAdmin(msg.From.ID) {
		h.handleAdminReply(ctx, msg)
		return
	}
	h.handleUserQuestion(ctx, msg)
}

func (h *Handler) handleUserQuestion(ctx context.Context, msg *models.Message) {
	text := strings.TrimSpace(msg.Text)
	if n := utf8.RuneCountInString(text); n < minQuestionLen || n > maxQuestionLen {
		h.send(ctx, msg.Chat.ID, questionLengthText(), nil)
		return
	}

	q := &model.Question{
		UserID:          msg.From.ID,
		OriginMessageID: msg.ID,
		QuestionText:    text,
	}
	if err := h.ds.CreateQuestion(q); err != nil {
		slog.Error("CreateQuestion failed", slog.Any("err", err))
		h.send(ctx, msg.Chat.ID, storeFailureText(), nil)
		return
	}

	if h.fanOutQuestion(ctx, q) == 0 {
		// 質問は保存済みだが誰にも通知できていない
		slog.Error("orphaned question: no administrator reachable",
			slog.Uint64("question_id", uint64(q.ID)))
		h.send(ctx, msg.Chat.ID, adminsUnreachableText(), nil)
		return
	}
	h.send(ctx, msg.Chat.ID, questionAcceptedText(q.ID), nil)
}

// fanOutQuestion notifies every administrator. Attempts are independent: one
// failure or timeout never blocks the others, and the delivery ref is recorded
// only after the send succeeded.
func (h *Handler) fanOutQuestion(ctx context.Context, q *model.Question) int {
	var wg sync.WaitGroup
	var delivered int32

	for _, adminID := range h.cfg.AdminIDs {
		wg.Add(1)
		go func(adminID int64) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
			defer cancel()

			sent, err := h.api.SendMessage(sendCtx, &bot.SendMessageParams{
				ChatID:      adminID,
				Text:        adminNotificationText(q.ID, q.QuestionText),
				ParseMode:   models.ParseModeHTML,
				ReplyMarkup: questionKeyboard(q.ID, true, true),
			})
			if err != nil {
				slog.Error("question delivery failed",
					slog.Int64("admin", adminID),
					slog.Uint64("question_id", uint64(q.ID)),
					slog.Any("err", err))
				return
			}
			atomic.AddInt32(&delivered, 1)

			if err := h.ds.RecordAdminDelivery(q.ID, adminID, sent.ID); err != nil {
				slog.Error("RecordAdminDelivery failed",
					slog.Int64("admin", adminID),
					slog.Uint64("question_id", uint64(q.ID)),
					slog.Any("err", err))
			}
		}(adminID)
	}
	wg.Wait()
	return int(atomic.LoadInt32(&delivered))
}

func (h *Handler) handleAdminReply(ctx context.Context, msg *models.Message) {
	if msg.ReplyToMessage == nil {
		h.send(ctx, msg.Chat.ID, replyUsageText(), nil)
		return
	}

	answer := strings.TrimSpace(msg.Text)
	if n := utf8.RuneCountInString(answer); n == 0 || n > maxAnswerLen {
		h.send(ctx, msg.Chat.ID, answerLengthText(), nil)
		return
	}

	adminID := msg.From.ID
	q, err := h.ds.ResolveByAdminMessage(adminID, msg.ReplyToMessage.ID)
	if err != nil {
		slog.Error("ResolveByAdminMessage failed", slog.Any("err", err))
		h.send(ctx, msg.Chat.ID, storeFailureText(), nil)
		return
	}
	if q == nil {
		h.send(ctx, msg.Chat.ID, questionGoneText(), nil)
		return
	}

	switch err := h.ds.MarkAnswered(q.ID, answer); {
	case errors.Is(err, infra.ErrAlreadyAnswered):
		h.send(ctx, msg.Chat.ID, alreadyAnsweredText(q.ID), nil)
		return
	case errors.Is(err, infra.ErrQuestionNotFound):
		h.send(ctx, msg.Chat.ID, questionGoneText(), nil)
		return
	case err != nil:
		slog.Error("MarkAnswered failed", slog.Any("err", err))
		h.send(ctx, msg.Chat.ID, storeFailureText(), nil)
		return
	}

	// The asking user's identity is resolved only here; it is neither logged
	// nor included in anything sent to an administrator.
	if _, err := h.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    q.UserID,
		Text:      answerDeliveryText(q.ID, answer),
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		slog.Error("answer delivery to user failed",
			slog.Uint64("question_id", uint64(q.ID)), slog.Any("err", err))
		h.send(ctx, msg.Chat.ID, answerRecordedNotDeliveredText(q.ID), nil)
	} else {
		h.send(ctx, msg.Chat.ID, answerSentText(q.ID), nil)
	}

	h.notifyClosure(ctx, q.ID, adminID)
}

// notifyClosure tells the other administrators the question is closed.
// Informational only; failures are not surfaced anywhere.
func (h *Handler) notifyClosure(ctx context.Context, questionID uint, answeredBy int64) {
	for _, adminID := range h.cfg.AdminIDs {
		if adminID == answeredBy {
			continue
		}
		if _, err := h.api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: adminID,
			Text:   closureNoticeText(questionID),
		}); err != nil {
			slog.Warn("closure notice failed", slog.Int64("admin", adminID), slog.Any("err", err))
		}
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *models.CallbackQuery) {
	act, ok := decodeAction(cb.Data)
	if !ok || cb.Message.Message == nil {
		h.answerCallback(ctx, cb.ID, "", false)
		return
	}
	if !h.cfg.IsAdmin(cb.From.ID) {
		h.answerCallback(ctx, cb.ID, notAllowedText(), true)
		return
	}

	msg := cb.Message.Message
	switch act.kind {
	case actionMarkSeen:
		h.editKeyboard(ctx, msg.Chat.ID, msg.ID, questionKeyboard(act.questionID, false, true))
		h.answerCallback(ctx, cb.ID, "Marked as seen", false)

	case actionMarkDone:
		// 表示上の整理のみ。回答状態はreply経由でしか変わらない
		h.editKeyboard(ctx, msg.Chat.ID, msg.ID, questionKeyboard(act.questionID, false, false))
		h.answerCallback(ctx, cb.ID, "Marked as handled", false)

	case actionReplyPrompt:
		h.answerCallback(ctx, cb.ID, "", false)
		prompt, err := h.api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          msg.Chat.ID,
			Text:            replyPromptText(act.questionID),
			ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
		})
		if err != nil {
			slog.Error("reply prompt failed", slog.Any("err", err))
			return
		}
		// プロンプト自身への返信でも質問を逆引きできるようにしておく
		if err := h.ds.RecordAdminDelivery(act.questionID, cb.From.ID, prompt.ID); err != nil {
			slog.Error("RecordAdminDelivery failed", slog.Any("err", err))
		}

	case actionShowStats:
		h.answerCallback(ctx, cb.ID, "", false)
		h.sendStats(ctx, msg.Chat.ID)

	case actionUnknown:
	}
}

func (h *Handler) cmdStart(ctx context.Context, _ *bot.Bot, upd *models.Update) {
	if upd.Message == nil || upd.Message.From == nil {
		return
	}
	if h.cfg.IsAdmin(upd.Message.From.ID) {
		h.send(ctx, upd.Message.Chat.ID, adminWelcomeText(), adminMenuKeyboard())
		return
	}
	h.send(ctx, upd.Message.Chat.ID, welcomeText(), nil)
}

func (h *Handler) cmdHelp(ctx context.Context, _ *bot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	h.send(ctx, upd.Message.Chat.ID, helpText(), nil)
}

func (h *Handler) cmdStats(ctx context.Context, _ *bot.Bot, upd *models.Update) {
	if upd.Message == nil || upd.Message.From == nil {
		return
	}
	if !h.cfg.IsAdmin(upd.Message.From.ID) {
		h.send(ctx, upd.Message.Chat.ID, adminOnlyText(), nil)
		return
	}
	h.sendStats(ctx, upd.Message.Chat.ID)
}

func (h *Handler) cmdPending(ctx context.Context, _ *bot.Bot, upd *models.Update) {
	if upd.Message == nil || upd.Message.From == nil {
		return
	}
	if !h.cfg.IsAdmin(upd.Message.From.ID) {
		h.send(ctx, upd.Message.Chat.ID, adminOnlyText(), nil)
		return
	}

	// 隠れている件数を出すため、ここではキャッシュを使わない
	stats, err := h.ds.GetStats()
	if err != nil {
		slog.Error("GetStats failed", slog.Any("err", err))
		h.send(ctx, upd.Message.Chat.ID, storeFailureText(), nil)
		return
	}
	questions, err := h.ds.GetPendingQuestions(pendingPageSize, 0)
	if err != nil {
		slog.Error("GetPendingQuestions failed", slog.Any("err", err))
		h.send(ctx, upd.Message.Chat.ID, storeFailureText(), nil)
		return
	}

	hidden := stats.Pending - int64(len(questions))
	if hidden < 0 {
		hidden = 0
	}
	h.send(ctx, upd.Message.Chat.ID, pendingText(questions, hidden), nil)
}

func (h *Handler) cmdDigest(ctx context.Context, _ *bot.Bot, upd *models.Update) {
	if upd.Message == nil || upd.Message.From == nil {
		return
	}
	if !h.cfg.IsAdmin(upd.Message.From.ID) {
		h.send(ctx, upd.Message.Chat.ID, adminOnlyText(), nil)
		return
	}
	if h.ai == nil {
		h.send(ctx, upd.Message.Chat.ID, digestDisabledText(), nil)
		return
	}

	questions, err := h.ds.GetPendingQuestions(digestBacklogMax, 0)
	if err != nil {
		slog.Error("GetPendingQuestions failed", slog.Any("err", err))
		h.send(ctx, upd.Message.Chat.ID, storeFailureText(), nil)
		return
	}
	if len(questions) == 0 {
		h.send(ctx, upd.Message.Chat.ID, pendingText(nil, 0), nil)
		return
	}

	digest, err := h.ai.GenerateDigest(questions)
	if err != nil {
		slog.Error("GenerateDigest failed", slog.Any("err", err))
		h.send(ctx, upd.Message.Chat.ID, storeFailureText(), nil)
		return
	}
	// モデル出力はHTMLとして解釈しない
	if _, err := h.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: upd.Message.Chat.ID,
		Text:   digest,
	}); err != nil {
		slog.Error("SendMessage failed", slog.Any("err", err))
	}
}

func (h *Handler) getStats() (*model.Stats, error) {
	if item := h.statsCache.Get("stats"); item != nil {
		return item.Value(), nil
	}
	stats, err := h.ds.GetStats()
	if err != nil {
		return nil, err
	}
	h.statsCache.Set("stats", stats, ttlcache.DefaultTTL)
	return stats, nil
}

func (h *Handler) sendStats(ctx context.Context, chatID int64) {
	stats, err := h.getStats()
	if err != nil {
		slog.Error("GetStats failed", slog.Any("err", err))
		h.send(ctx, chatID, storeFailureText(), nil)
		return
	}
	h.send(ctx, chatID, statsText(stats), nil)
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := h.api.SendMessage(ctx, params); err != nil {
		slog.Error("SendMessage failed", slog.Int64("chat", chatID), slog.Any("err", err))
	}
}

func (h *Handler) editKeyboard(ctx context.Context, chatID int64, messageID int, markup *models.InlineKeyboardMarkup) {
	if _, err := h.api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	}); err != nil {
		slog.Error("EditMessageReplyMarkup failed", slog.Int64("chat", chatID), slog.Any("err", err))
	}
}

func (h *Handler) answerCallback(ctx context.Context, callbackID, text string, alert bool) {
	if _, err := h.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		slog.Error("AnswerCallbackQuery failed", slog.Any("err", err))
	}
}
