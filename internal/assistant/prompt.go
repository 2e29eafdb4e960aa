package assistant

import (
	"fmt"
	"strings"
)

// Persona describes how the assistant talks.
type Persona struct {
	Name          string
	Owner         string
	Tone          string
	UseEmojis     bool
	UseSlang      bool
	ResponseStyle string
	// Spontaneity and Creativity are on a 1-10 scale.
	Spontaneity int
	Creativity  int
}

// DefaultPersona is the marketing assistant the service ships with.
func DefaultPersona(name, owner string) Persona {
	if strings.TrimSpace(name) == "" {
		name = "Heitor"
	}
	return Persona{
		Name:          name,
		Owner:         owner,
		Tone:          "friendly and upbeat",
		UseEmojis:     true,
		UseSlang:      true,
		ResponseStyle: "short, conversational WhatsApp messages",
		Spontaneity:   8,
		Creativity:    8,
	}
}

// SystemPrompt is the provider-level instruction that pins the persona.
func (p Persona) SystemPrompt() string {
	return fmt.Sprintf("You are %s, a charismatic marketing assistant. Always answer in Brazilian Portuguese.", p.Name)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// BuildPrompt assembles the user turn sent to the language model.
func BuildPrompt(p Persona, summary string, recentHistory []string, body string, isGroup bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PERSONA (%s):\n", p.Name)
	b.WriteString("- Marketing and advertising graduate\n")
	if p.Owner != "" {
		fmt.Fprintf(&b, "- Works exclusively with %s\n", p.Owner)
	}
	fmt.Fprintf(&b, "- Tone: %s\n", p.Tone)
	fmt.Fprintf(&b, "- Uses emojis: %s\n", yesNo(p.UseEmojis))
	fmt.Fprintf(&b, "- Uses slang: %s\n", yesNo(p.UseSlang))
	fmt.Fprintf(&b, "- Response style: %s\n", p.ResponseStyle)
	fmt.Fprintf(&b, "- Spontaneity: %d/10\n", p.Spontaneity)
	fmt.Fprintf(&b, "- Creativity: %d/10\n", p.Creativity)

	if s := strings.TrimSpace(summary); s != "" {
		b.WriteString("\nCONVERSATION CONTEXT:\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	if len(recentHistory) > 0 {
		b.WriteString("\nRECENT HISTORY:\n")
		b.WriteString(strings.Join(recentHistory, "\n"))
		b.WriteString("\n")
	}

	kind := "PRIVATE"
	if isGroup {
		kind = "GROUP"
	}
	fmt.Fprintf(&b, "\nMESSAGE RECEIVED: %q\nCONVERSATION TYPE: %s\n", body, kind)

	b.WriteString("\nINSTRUCTIONS:\n")
	fmt.Fprintf(&b, "1. Reply as %s, a human and charismatic marketing assistant\n", p.Name)
	b.WriteString("2. Keep the language natural; never sound like a bot\n")
	fmt.Fprintf(&b, "3. Keep the tone %s\n", p.Tone)
	b.WriteString("4. Offer marketing insight when it is relevant\n")
	b.WriteString("5. For art or campaign requests, ask for the specific details you still need\n")
	if isGroup {
		b.WriteString("6. In groups, keep people engaged with a question\n")
	} else if p.Owner != "" {
		fmt.Fprintf(&b, "6. When talking to %s, focus on tasks and reminders\n", p.Owner)
	}
	fmt.Fprintf(&b, "\n%s'S REPLY:\n", strings.ToUpper(p.Name))
	return b.String()
}
