// Package render builds the HTML fragments the chat widget inserts into its
// transcript.
package render

import (
	"bytes"
	"html/template"
	"log/slog"

	"github.com/move-it/website/internal/domain"
)

// DefaultAvatar is the operator portrait served by the embedded site.
const DefaultAvatar = "/images/operator.svg"

var bubbleTemplate = template.Must(template.New("bubble").Parse(
	`<div class="message {{.Class}}">` +
		`{{if .Avatar}}<img src="{{.Avatar}}" alt="Move It assistant" class="operator-avatar">{{end}}` +
		`<div class="message-text">{{.Text}}</div>` +
		`</div>`))

type bubble struct {
	Class  string
	Avatar string
	Text   any
}

// Renderer turns chat messages into bubble markup.
type Renderer struct {
	avatar string
}

// New returns a Renderer that prefixes operator bubbles with avatar.
// An empty avatar falls back to DefaultAvatar.
func New(avatar string) *Renderer {
	if avatar == "" {
		avatar = DefaultAvatar
	}
	return &Renderer{avatar: avatar}
}

// Avatar returns the operator image URL.
func (r *Renderer) Avatar() string {
	return r.avatar
}

// Bubble renders one message. Operator text comes from the reply catalog and
// is inserted as markup so its links stay clickable. User text is escaped.
func (r *Renderer) Bubble(role domain.Role, text string) string {
	b := bubble{Class: "user-message", Text: text}
	if role == domain.RoleOperator {
		b = bubble{
			Class:  "operator-message",
			Avatar: r.avatar,
			Text:   template.HTML(text), //nolint:gosec // operator replies are catalog content
		}
	}

	var buf bytes.Buffer
	if err := bubbleTemplate.Execute(&buf, b); err != nil {
		slog.Warn("Failed to render chat bubble", "role", role, "error", err)
		return ""
	}
	return buf.String()
}

var defaultRenderer = New(DefaultAvatar)

// Bubble renders with the default operator avatar.
func Bubble(role domain.Role, text string) string {
	return defaultRenderer.Bubble(role, text)
}
