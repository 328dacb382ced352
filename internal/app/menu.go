package app

import (
	"fmt"

	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/settings"
)

type ButtonID string

const (
	ButtonEnterData   ButtonID = "enter_data"
	ButtonReviewData  ButtonID = "review_data"
	ButtonSendData    ButtonID = "send_data"
	ButtonViewSent    ButtonID = "view_sent"
	ButtonGetForms    ButtonID = "get_forms"
	ButtonManageFiles ButtonID = "manage_files"
)

type Button struct {
	ID      ButtonID `json:"id"`
	Label   string   `json:"label"`
	Visible bool     `json:"visible"`
}

type DialogKind string

const (
	DialogNone      DialogKind = "none"
	DialogProgress  DialogKind = "progress"
	DialogListError DialogKind = "list_error"
)

// Dialog is the blocking dialog currently shown over the menu.
type Dialog struct {
	Kind     DialogKind       `json:"kind"`
	Message  string           `json:"message,omitempty"`
	Progress *domain.Progress `json:"progress,omitempty"`
}

// Menu is the main-menu snapshot. Notice carries the outcome of the last
// settings import until it is dismissed.
type Menu struct {
	AppName  string          `json:"app_name"`
	Counters domain.Counters `json:"counters"`
	Buttons  []Button        `json:"buttons"`
	Dialog   Dialog          `json:"dialog"`
	Notice   string          `json:"notice,omitempty"`
}

type menuButton struct {
	id       ButtonID
	text     string
	adminKey string
}

var menuButtons = []menuButton{
	{ButtonEnterData, "Fill Blank Form", ""},
	{ButtonReviewData, "Edit Saved Form", settings.KeyEditSaved},
	{ButtonSendData, "Send Finalized Form", settings.KeySendFinalized},
	{ButtonViewSent, "View Sent Form", settings.KeyViewSent},
	{ButtonGetForms, "Get Blank Form", settings.KeyGetBlank},
	{ButtonManageFiles, "Delete Saved Form", settings.KeyDeleteSaved},
}

// countLabel appends the count in parentheses when there is something to
// count.
func countLabel(text string, n int) string {
	if n <= 0 {
		return text
	}
	return fmt.Sprintf("%s (%d)", text, n)
}

func buttonLabel(id ButtonID, text string, c domain.Counters) string {
	switch id {
	case ButtonReviewData:
		return countLabel(text, c.Saved)
	case ButtonSendData:
		return countLabel(text, c.Finalized)
	case ButtonViewSent:
		return countLabel(text, c.Sent)
	default:
		return text
	}
}
