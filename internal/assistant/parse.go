package assistant

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

const fallbackChatReply = "Sorry, I did not understand that."

const fallbackNPCSay = "Hey, how do you see it?"

var fallbackOptions = []string{
	"Say no respectfully",
	"Suggest an alternative",
	"Ask for more information",
}

func fallbackJournal() *JournalFeedback {
	return &JournalFeedback{
		Strengths: []string{
			"You expressed yourself honestly.",
			"You show self-awareness.",
			"You want to grow.",
		},
		Suggestions: []string{
			"Take three deep breaths when you notice tension.",
			"Write down one small goal for tomorrow.",
			"Talk with someone you trust for ten minutes.",
		},
		Summary: "You are reflecting well. With small steps and support, you will move forward.",
	}
}

var (
	leadingFence  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	trailingFence = regexp.MustCompile("```\\s*$")
)

// stripCodeFences removes a Markdown code fence around a JSON payload.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func parseJSON(raw string, v any) bool {
	txt := stripCodeFences(raw)
	if txt == "" {
		return false
	}
	return json.Unmarshal([]byte(txt), v) == nil
}

// parseRoleplay never fails: missing or short fields fall back to defaults.
func parseRoleplay(raw string) *RoleplayStep {
	var out struct {
		NPCSay  string   `json:"npcSay"`
		Options []string `json:"options"`
	}
	_ = parseJSON(raw, &out)

	npc := strings.TrimSpace(out.NPCSay)
	if npc == "" {
		npc = fallbackNPCSay
	}

	labels := fallbackOptions
	if len(out.Options) >= 3 {
		labels = out.Options[:3]
	}

	step := &RoleplayStep{NPCSay: npc, Options: make([]RoleplayOption, 0, 3)}
	for i, label := range labels {
		step.Options = append(step.Options, RoleplayOption{
			ID:    "opt-" + strconv.Itoa(i+1),
			Label: label,
		})
	}
	return step
}

// parseJournal returns canned feedback unless all three fields are present.
func parseJournal(raw string) *JournalFeedback {
	var out struct {
		Strengths   []string `json:"strengths"`
		Suggestions []string `json:"suggestions"`
		Summary     *string  `json:"summary"`
	}
	if !parseJSON(raw, &out) || out.Strengths == nil || out.Suggestions == nil || out.Summary == nil {
		return fallbackJournal()
	}
	return &JournalFeedback{
		Strengths:   out.Strengths,
		Suggestions: out.Suggestions,
		Summary:     *out.Summary,
	}
}

var stringArray = &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}

var roleplaySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"npcSay": {Type: genai.TypeString},
		"options": {
			Type:     genai.TypeArray,
			Items:    &genai.Schema{Type: genai.TypeString},
			MinItems: genai.Ptr[int64](3),
			MaxItems: genai.Ptr[int64](3),
		},
	},
	Required: []string{"npcSay", "options"},
}

var journalSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"strengths":   stringArray,
		"suggestions": stringArray,
		"summary":     {Type: genai.TypeString},
	},
	Required: []string{"strengths", "suggestions", "summary"},
}
