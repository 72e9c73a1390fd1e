package handler

import (
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot/models"
	"github.com/whisperbox/whisperbox/domain/model"
)

const previewLen = 80

func welcomeText() string {
	return "👋 <b>Hi! I relay anonymous questions.</b>\n\n" +
		"📝 <b>How it works:</b>\n" +
		"1. Type your question here\n" +
		"2. The administrators receive it anonymously\n" +
		"3. The answer comes back to you in this chat\n\n" +
		"❗ <b>Your question and the answer are fully anonymous.</b>\n\n" +
		"Just type your question into this chat…"
}

func adminWelcomeText() string {
	return "🛠 <b>Administrator panel</b>\n\n" +
		"New questions arrive here as notifications. Reply directly to a " +
		"notification to answer it.\n\n" +
		"📌 <b>Commands:</b>\n" +
		"/stats - question ledger statistics\n" +
		"/pending - newest unanswered questions\n" +
		"/digest - summary of the unanswered backlog"
}

func helpText() string {
	return "❓ <b>Help</b>\n\n" +
		"Type your question into this chat and it is forwarded to the " +
		"administrators. They see only the question text, never your name. " +
		"The answer arrives right here.\n\n" +
		"💡 <b>Tip:</b> a clear, detailed question gets a better answer."
}

func questionLengthText() string {
	return fmt.Sprintf("❌ Questions must be between %d and %d characters long.", minQuestionLen, maxQuestionLen)
}

func answerLengthText() string {
	return fmt.Sprintf("❌ Answers must be between 1 and %d characters long.", maxAnswerLen)
}

func storeFailureText() string {
	return "❌ Something went wrong while saving. Please try again later."
}

func questionAcceptedText(id uint) string {
	return fmt.Sprintf("✅ Your question was sent to the administrators anonymously (ID: %d).\nThe answer will arrive in this chat.", id)
}

func adminsUnreachableText() string {
	return "❌ Your question was recorded, but no administrator could be reached. They will be notified as soon as possible."
}

func adminNotificationText(id uint, question string) string {
	return fmt.Sprintf("❓ <b>New anonymous question</b> (ID: %d)\n\n%s\n\n<i>Reply to this message to answer it.</i>",
		id, html.EscapeString(question))
}

func answerDeliveryText(id uint, answer string) string {
	return fmt.Sprintf("📨 <b>Answer to your question</b> (ID: %d)\n\n%s", id, html.EscapeString(answer))
}

func replyPromptText(id uint) string {
	return fmt.Sprintf("Reply to this message to answer question ID: %d", id)
}

func replyUsageText() string {
	return "To answer a question, reply directly to its notification message."
}

func questionGoneText() string {
	return "❌ Question not found. It may already be handled or the reference is stale."
}

func alreadyAnsweredText(id uint) string {
	return fmt.Sprintf("⚠️ Question ID %d was already answered by another administrator. The user was not messaged again.", id)
}

func answerSentText(id uint) string {
	return fmt.Sprintf("✅ Answer delivered to the user (question ID: %d).", id)
}

func answerRecordedNotDeliveredText(id uint) string {
	return fmt.Sprintf("⚠️ The answer to question ID %d was recorded, but delivering it to the user failed.", id)
}

func closureNoticeText(id uint) string {
	return fmt.Sprintf("📤 Question ID %d was answered by another administrator.", id)
}

func adminOnlyText() string {
	return "This command is for administrators only."
}

func notAllowedText() string {
	return "You are not allowed to do that."
}

func unknownCommandText() string {
	return "Unknown command. Try /help."
}

func statsText(s *model.Stats) string {
	return fmt.Sprintf("📊 <b>Question ledger</b>\n\nTotal questions: %d\nAnswered: %d\nPending: %d\nAnswered: %.1f%%",
		s.Total, s.Answered, s.Pending, s.AnsweredPct())
}

func pendingText(questions []model.Question, hidden int64) string {
	if len(questions) == 0 {
		return "📭 No pending questions."
	}

	var sb strings.Builder
	sb.WriteString("📬 <b>Pending questions</b> (newest first)\n")
	for _, q := range questions {
		fmt.Fprintf(&sb, "\n<b>#%d</b> (%s)\n%s\n",
			q.ID, q.AskedAt.Format("2006-01-02 15:04"), html.EscapeString(preview(q.QuestionText)))
	}
	if hidden > 0 {
		fmt.Fprintf(&sb, "\n<i>… and %d more</i>", hidden)
	}
	return sb.String()
}

func digestDisabledText() string {
	return "The digest feature is not configured. Set OPENAI_API_KEY to enable it."
}

func preview(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= previewLen {
		return string(r)
	}
	return string(r[:previewLen-1]) + "…"
}

// questionKeyboard renders one administrator's controls under a notification.
// Seen and Done collapse independently of the answer state.
func questionKeyboard(questionID uint, withSeen, withDone bool) *models.InlineKeyboardMarkup {
	row := []models.InlineKeyboardButton{
		{Text: "📝 Reply", CallbackData: encodeAction(actionReplyPrompt, questionID)},
	}
	if withSeen {
		row = append(row, models.InlineKeyboardButton{Text: "👁 Seen", CallbackData: encodeAction(actionMarkSeen, questionID)})
	}
	if withDone {
		row = append(row, models.InlineKeyboardButton{Text: "✔️ Done", CallbackData: encodeAction(actionMarkDone, questionID)})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}}
}

func adminMenuKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: "📊 Stats", CallbackData: encodeAction(actionShowStats, 0)}},
	}}
}
