package channels

import (
	"errors"
	"strings"

	"github.com/pxfen/framegate/pkg/bus"
)

const heroCardContentType = "application/vnd.microsoft.card.hero"

var errNoElements = errors.New("botframework: custom message needs at least one element")

// textFragments splits text into one activity fragment per paragraph. The
// platform renders each fragment as its own bubble, so paragraphs become
// separately timestamped messages. Whitespace-only paragraphs are dropped
// rather than sent as empty bubbles.
func textFragments(text string) []map[string]any {
	parts := strings.Split(text, "\n\n")
	fragments := make([]map[string]any, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		fragments = append(fragments, map[string]any{"text": part})
	}
	return fragments
}

// imageFragment wraps an image URL in a hero-card attachment.
func imageFragment(imageURL string) map[string]any {
	return map[string]any{
		"attachments": []map[string]any{{
			"contentType": heroCardContentType,
			"content": map[string]any{
				"images": []map[string]any{{"url": imageURL}},
			},
		}},
	}
}

// buttonsFragment wraps text as a hero-card subtitle with the buttons as the
// card's actions.
func buttonsFragment(text string, buttons []bus.CardAction) map[string]any {
	return map[string]any{
		"attachments": []map[string]any{{
			"contentType": heroCardContentType,
			"content": map[string]any{
				"subtitle": text,
				"buttons":  buttons,
			},
		}},
	}
}

// customFragment passes the first element through verbatim. It exists so the
// pipeline can hand the connector platform-specific JSON directly.
func customFragment(elements []map[string]any) (map[string]any, error) {
	if len(elements) == 0 {
		return nil, errNoElements
	}
	return elements[0], nil
}
