package scheduling

import "fmt"

const (
	ReplyCardFailed = "❌ Failed to create Trello card."
	ReplyEnd        = "🔚 (Placeholder) This would mark your Trello card as ended."
	ReplyCancel     = "❌ (Placeholder) This would cancel/delete your Trello card."
)

func scheduledReply(s Schedule, card Card) string {
	return fmt.Sprintf("✅ Scheduled **%s** at **%s**\n🔗 Trello card: %s", s.Type, s.Time, card.ShortURL)
}

func editReply(e Edit) string {
	return fmt.Sprintf("✏️ (Placeholder) Update Trello card → Time: %s, Co-Host: %s", e.Time, e.Cohost)
}
