package credential

import (
	"context"

	"github.com/ncruces/zenity"
)

// ZenityPrompter asks for the key with a native password dialog.
type ZenityPrompter struct{}

// Prompt shows the dialog. zenity.ErrCanceled is returned when dismissed.
func (ZenityPrompter) Prompt(ctx context.Context) (string, error) {
	return zenity.Entry(
		"Paste your Gemini API key. It is stored locally and only sent to the translation service.",
		zenity.Title("mudra - API key"),
		zenity.HideText(),
		zenity.Context(ctx),
	)
}
