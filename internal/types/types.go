package types

import "fmt"

// Category is the closed taxonomy a detected order is filed under.
type Category string

const (
	CategoryBackend  Category = "Backend"
	CategoryFrontend Category = "Frontend"
	CategoryMobile   Category = "Mobile"
	CategoryAIML     Category = "AI/ML"
	CategoryLowCode  Category = "Low-Code"
	CategoryOther    Category = "Other"
)

// Categories lists every valid category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryBackend,
		CategoryFrontend,
		CategoryMobile,
		CategoryAIML,
		CategoryLowCode,
		CategoryOther,
	}
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryBackend, CategoryFrontend, CategoryMobile,
		CategoryAIML, CategoryLowCode, CategoryOther:
		return true
	}
	return false
}

// ParseCategory validates a raw string against the closed set.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// DetectionMethod tags which tier produced an order.
type DetectionMethod string

const (
	DetectedByRegex  DetectionMethod = "regex"
	DetectedByLLM    DetectionMethod = "llm"
	DetectedByManual DetectionMethod = "manual"
)

// Valid reports whether m is a known detection method.
func (m DetectionMethod) Valid() bool {
	switch m {
	case DetectedByRegex, DetectedByLLM, DetectedByManual:
		return true
	}
	return false
}

// ChatKind classifies a message source.
type ChatKind string

const (
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
	ChatPrivate    ChatKind = "private"
)

// NormalizeChatKind maps loose inbound values onto the persisted set.
// Unknown values fall back to "group", matching how chats with no
// reliable type information are stored.
func NormalizeChatKind(s string) ChatKind {
	switch ChatKind(s) {
	case ChatGroup, ChatSupergroup, ChatChannel, ChatPrivate:
		return ChatKind(s)
	}
	return ChatGroup
}
