package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orderscout/orderscout/internal/types"
)

// SystemPrompt is the static directive sent with every classification
// request. English instructions perform measurably better against the
// Russian-language payloads the deployment sees.
const SystemPrompt = `You are a professional assistant for detecting IT service orders from Russian Telegram messages.

Your task:

1. Analyze incoming text messages to determine if they contain orders/requests for technical services

2. Classify the order into one of these categories: Backend, Frontend, Mobile, AI/ML, Low-Code, Other

3. Provide a relevance score (0.0-1.0) indicating how certain you are that this is a valid order

4. Explain briefly why you classified it this way

Categories explanation:

- Backend: Python, Node.js, Go, Rust, Java, C++, API development, microservices, databases, webhooks

- Frontend: React, Vue, Angular, WebFlow, Figma, UI/UX design, HTML/CSS

- Mobile: Flutter, React Native, iOS, Android mobile app development

- AI/ML: ChatGPT integration, Prompt engineering, neural networks, business automation, AI assistants

- Low-Code: Bubble, Glide, Adalo, Zapier, Make, n8n, no-code platforms

- Other: 1C development, Shopify, marketplaces, specialized solutions

Important rules:

1. Only return valid orders for technical services, NOT:
   - General recommendations or advice
   - Social messages or casual chat
   - Spam or advertisements
   - Product sales (laptops, phones, etc.)

2. Be conservative with relevance_score:
   - Only give scores above 0.7 if you're quite confident
   - Use 0.3-0.5 for ambiguous cases
   - Use < 0.3 for unlikely orders

3. Always respond with valid JSON, no markdown formatting

4. Prioritize accuracy over recall - better to miss an order than include non-orders

Response format (JSON only):

{
  "is_order": true/false,
  "category": "Backend" or "Frontend" or "Mobile" or "AI/ML" or "Low-Code" or "Other",
  "relevance_score": 0.0-1.0 (float),
  "reason": "Brief explanation in Russian"
}`

// BatchPrompt formats a multi-message payload. The remote is asked for
// one JSON object per input, in input order, one per line.
func BatchPrompt(texts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these %d messages and provide JSON responses for each.\n\n", len(texts))
	b.WriteString("For each message, provide the response in the same order as the input.\n\n")
	b.WriteString("Messages to analyze:\n\n")
	for i, t := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	b.WriteString("\nProvide JSON responses in order, one per line:")
	return b.String()
}

// Classification is the validated, typed result of one remote call.
type Classification struct {
	IsOrder   bool           `json:"is_order"`
	Category  types.Category `json:"category"`
	Relevance float64        `json:"relevance_score"`
	Reason    string         `json:"reason"`
}

// rawClassification is the pre-validation wire shape. Category stays a
// plain string until validated so a null/empty value can be normalized.
type rawClassification struct {
	IsOrder   *bool    `json:"is_order"`
	Category  *string  `json:"category"`
	Relevance *float64 `json:"relevance_score"`
	Reason    *string  `json:"reason"`
}

func (r rawClassification) validate() (Classification, error) {
	if r.IsOrder == nil {
		return Classification{}, fmt.Errorf("missing is_order")
	}
	if r.Relevance == nil {
		return Classification{}, fmt.Errorf("missing relevance_score")
	}
	if *r.Relevance < 0 || *r.Relevance > 1 {
		return Classification{}, fmt.Errorf("relevance_score %v outside [0,1]", *r.Relevance)
	}

	category := ""
	if r.Category != nil {
		category = *r.Category
	}
	// A non-order with no category is normalized to Other.
	if category == "" {
		if *r.IsOrder {
			return Classification{}, fmt.Errorf("order with empty category")
		}
		category = string(types.CategoryOther)
	}
	cat, err := types.ParseCategory(category)
	if err != nil {
		if *r.IsOrder {
			return Classification{}, err
		}
		cat = types.CategoryOther
	}

	reason := ""
	if r.Reason != nil {
		reason = *r.Reason
	}

	return Classification{
		IsOrder:   *r.IsOrder,
		Category:  cat,
		Relevance: *r.Relevance,
		Reason:    reason,
	}, nil
}

// ParseClassification extracts one validated classification from a
// possibly noisy payload. Strategy: try a full-payload parse; failing
// that, scan for balanced {...} substrings and accept the first that
// passes schema validation.
func ParseClassification(payload string) (Classification, error) {
	if c, err := tryParse(payload); err == nil {
		return c, nil
	}
	for _, candidate := range balancedObjects(payload) {
		if c, err := tryParse(candidate); err == nil {
			return c, nil
		}
	}
	return Classification{}, fmt.Errorf("no valid classification object in payload")
}

// ParseBatch extracts up to count classifications from the payload, in
// order of appearance. Scanning is by balanced {...} objects rather than
// by line, since whitespace in the assistant payload is not trustworthy.
// Unparsable objects are skipped; missing slots are nil.
func ParseBatch(payload string, count int) []*Classification {
	results := make([]*Classification, 0, count)

	for _, candidate := range balancedObjects(payload) {
		if c, err := tryParse(candidate); err == nil {
			cc := c
			results = append(results, &cc)
		}
		if len(results) >= count {
			break
		}
	}

	for len(results) < count {
		results = append(results, nil)
	}
	return results[:count]
}

func tryParse(s string) (Classification, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var raw rawClassification
	if err := dec.Decode(&raw); err != nil {
		return Classification{}, err
	}
	return raw.validate()
}

// balancedObjects returns every top-level {...} substring of s, in order
// of appearance. Brace tracking ignores braces inside JSON strings.
func balancedObjects(s string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}
