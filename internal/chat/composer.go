package chat

import (
	"slices"
	"strings"

	"github.com/spec-kit/moving-chat/internal/domain"
)

const keyEnter = "Enter"

// Composer holds the draft and the sending flag of one conversation.
type Composer struct {
	draft   domain.Draft
	sending bool
}

// NewComposer returns an empty composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Draft returns a copy of the current draft.
func (c *Composer) Draft() domain.Draft {
	return c.draft.Clone()
}

// Sending reports whether a send is outstanding.
func (c *Composer) Sending() bool {
	return c.sending
}

// CanSend is true when no send is outstanding and the draft has text or files.
func (c *Composer) CanSend() bool {
	if c.sending {
		return false
	}
	return strings.TrimSpace(c.draft.Text) != "" || len(c.draft.Files) > 0
}

// SetText replaces the draft text.
func (c *Composer) SetText(text string) {
	c.draft.Text = text
}

// AddFiles appends files to the draft.
func (c *Composer) AddFiles(files ...domain.LocalFile) {
	c.draft.Files = append(c.draft.Files, files...)
}

// RemoveFile drops a file by id and reports whether it was present.
func (c *Composer) RemoveFile(id string) bool {
	idx := slices.IndexFunc(c.draft.Files, func(f domain.LocalFile) bool { return f.ID == id })
	if idx < 0 {
		return false
	}
	c.draft.Files = slices.Delete(c.draft.Files, idx, idx+1)
	return true
}

// ClearFiles drops every selected file.
func (c *Composer) ClearFiles() {
	c.draft.Files = nil
}

// Cancel discards the draft.
func (c *Composer) Cancel() {
	c.draft = domain.Draft{}
}

// HandleKey applies a key press. It returns true when the key asks for a send;
// Enter with a modifier inserts a newline instead.
func (c *Composer) HandleKey(ev domain.KeyEvent) bool {
	if ev.Key != keyEnter {
		return false
	}
	if ev.HasModifier() {
		c.draft.Text += "\n"
		return false
	}
	return true
}

// begin marks a send as outstanding and hands out a snapshot of the draft.
func (c *Composer) begin() (domain.Draft, bool) {
	if !c.CanSend() {
		return domain.Draft{}, false
	}
	c.sending = true
	return c.draft.Clone(), true
}

// finish ends an outstanding send, clearing the draft on success.
func (c *Composer) finish(ok bool) {
	c.sending = false
	if ok {
		c.draft = domain.Draft{}
	}
}
