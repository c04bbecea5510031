package workflows

import (
	"strings"
	"unicode/utf8"

	"rick-api/models"
)

const (
	systemPrompt = "Jesteś Rick – spokojny, refleksyjny partner-mentor (Alfred vibe). " +
		"Dostarczasz jasność i logiczne plany. Zero 'AI-owości'."

	qualityChecklist = "- Sedno 2–5 zdań\n" +
		"- 1–3 kroki\n" +
		"- Założenia/ryzyka\n" +
		"- Alternatywa B (jeśli ma sens)\n" +
		"- Max 1–2 pytania tylko gdy brakuje kluczowych danych"

	clarifyTemperature = 0.3
	draftTemperature   = 0.4
	refineTemperature  = 0.2

	maxTitleRunes = 80
	defaultTitle  = "Nowa rozmowa"
)

func withPersona(userContent string) []models.ChatMessage {
	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: systemPrompt},
		{Role: models.RoleUser, Content: userContent},
	}
}

func clarifyPrompt(text string) []models.ChatMessage {
	return withPersona("Zanim odpowiesz, zapytaj o max 1–2 brakujące informacje. Użytkownik: " + text)
}

func draftPrompt(text string) []models.ChatMessage {
	return withPersona("Użyj pętli MZDS i odpowiedz wg formatu " +
		"(Sedno/Plan/Założenia i ryzyka/Alternatywa B/Pytanie jeśli trzeba). " +
		"Użytkownik: " + text)
}

func refinePrompt(draft string) []models.ChatMessage {
	return withPersona(draft + "\n\n[Sprawdź jakość i podaj wersję finalną.]\n" + qualityChecklist)
}

// conversationTitle derives a title from the message that opened the conversation.
func conversationTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if title == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleRunes-1])) + "…"
}
