package notify

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	texttemplate "text/template"

	"noticebox/internal/types"
)

//go:embed templates
var defaultTemplateFS embed.FS

// recipientContextKey is the fixed key under which the recipient is bound in
// every template rendering context.
const recipientContextKey = "User"

// Default per-channel, per-role template path patterns. The single %s is
// replaced by the preset name.
const (
	DefaultWebSubjectPattern   = "noticebox/%s/web_subject.html"
	DefaultWebBodyPattern      = "noticebox/%s/web_body.html"
	DefaultEmailSubjectPattern = "noticebox/%s/email_subject.txt"
	DefaultEmailBodyPattern    = "noticebox/%s/email_body.txt"
)

// Renderer resolves preset template paths and renders subject/body content
// for one recipient. The web channel renders through html/template, so any
// untrusted value interpolated into a web notice arrives HTML-escaped; the
// email channel renders through text/template and produces plain text with
// no escaping. That asymmetry is observable behavior and must be preserved.
type Renderer struct {
	fsys     fs.FS
	patterns map[types.ChannelType]map[types.TemplateRole]string
}

// RendererConfig holds the parameters for constructing a Renderer. All
// fields are optional; the zero value uses the embedded default templates
// and the default path patterns.
type RendererConfig struct {
	// FS is the template source tree. Nil means the embedded defaults.
	// Deployments override presets by pointing this at an os.DirFS tree
	// laid out the same way (noticebox/<preset>/...).
	FS fs.FS

	// Pattern overrides. Empty fields keep the defaults above.
	WebSubjectPattern   string
	WebBodyPattern      string
	EmailSubjectPattern string
	EmailBodyPattern    string
}

// NewRenderer creates a Renderer from the given configuration.
func NewRenderer(cfg RendererConfig) *Renderer {
	fsys := cfg.FS
	if fsys == nil {
		// The embed root includes the "templates" directory itself.
		sub, err := fs.Sub(defaultTemplateFS, "templates")
		if err != nil {
			// Unreachable: the subtree is compiled in.
			panic(fmt.Sprintf("notify: embedded templates missing: %v", err))
		}
		fsys = sub
	}

	pick := func(override, def string) string {
		if override != "" {
			return override
		}
		return def
	}

	return &Renderer{
		fsys: fsys,
		patterns: map[types.ChannelType]map[types.TemplateRole]string{
			types.ChannelWeb: {
				types.RoleSubject: pick(cfg.WebSubjectPattern, DefaultWebSubjectPattern),
				types.RoleBody:    pick(cfg.WebBodyPattern, DefaultWebBodyPattern),
			},
			types.ChannelEmail: {
				types.RoleSubject: pick(cfg.EmailSubjectPattern, DefaultEmailSubjectPattern),
				types.RoleBody:    pick(cfg.EmailBodyPattern, DefaultEmailBodyPattern),
			},
		},
	}
}

// ResolvePath returns the template path for the given channel, role, and
// preset. Resolution is a pure string substitution: the same inputs always
// yield the same path. It does not check existence; Render reports a
// not-found template when the file is absent.
func (r *Renderer) ResolvePath(channel types.ChannelType, role types.TemplateRole, preset string) string {
	if preset == "" {
		preset = types.DefaultPreset
	}
	return fmt.Sprintf(r.patterns[channel][role], preset)
}

// Render resolves and renders one template role for one recipient. The
// rendering context is the caller's extra values with the recipient bound
// under the fixed "User" key (the recipient wins on collision).
//
// templatePath, when non-empty, bypasses preset resolution entirely — the
// per-call template path override of the dispatch contract.
func (r *Renderer) Render(
	channel types.ChannelType,
	role types.TemplateRole,
	preset string,
	templatePath string,
	recipient types.Recipient,
	extra map[string]any,
) (string, error) {
	path := templatePath
	if path == "" {
		path = r.ResolvePath(channel, role, preset)
	}

	raw, err := fs.ReadFile(r.fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", types.NewAppErrorWithDetails(types.ErrCodeNotFoundTemplate,
				fmt.Sprintf("template %q not found", path), err,
				map[string]any{"channel": string(channel), "role": string(role), "preset": preset})
		}
		return "", types.NewAppError(types.ErrCodeInternalRender,
			fmt.Sprintf("failed to read template %q", path), err)
	}

	data := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		data[k] = v
	}
	data[recipientContextKey] = recipient

	var buf bytes.Buffer
	if channel == types.ChannelWeb {
		tmpl, err := htmltemplate.New(path).Parse(string(raw))
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalRender,
				fmt.Sprintf("failed to parse template %q", path), err)
		}
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", types.NewAppError(types.ErrCodeInternalRender,
				fmt.Sprintf("failed to render template %q", path), err)
		}
	} else {
		tmpl, err := texttemplate.New(path).Parse(string(raw))
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalRender,
				fmt.Sprintf("failed to parse template %q", path), err)
		}
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", types.NewAppError(types.ErrCodeInternalRender,
				fmt.Sprintf("failed to render template %q", path), err)
		}
	}

	return buf.String(), nil
}

// Literal returns an override string adjusted for the channel's escaping
// rules: the web channel HTML-escapes it (matching what html/template would
// do to the same value), the email channel returns it verbatim.
func (r *Renderer) Literal(channel types.ChannelType, text string) string {
	if channel == types.ChannelWeb {
		return htmltemplate.HTMLEscapeString(text)
	}
	return text
}
