package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/eduavalia/backend/fs"
)

var templates tmplCache

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: tmplCacheEntry}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	// Implementations send after the triggering transaction has committed;
	// their failures never affect committed state.
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) getContextData(conf *Config) ContextData {
	return ContextData{
		FrontendBaseURL: conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}
}

func (m *EmailMessage) getTemplate(ext string) (interface{}, bool) {
	cache, ok := templates[m.TemplateName]
	if !ok {
		return nil, ok
	}
	tmplEntry, ok := cache[ext]
	return tmplEntry, ok
}

func (m *EmailMessage) renderText(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := m.getTemplate(".txt")
	if !ok {
		return nil
	}
	tmpl, ok := tmplEntry.(*texttmpl.Template)
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(conf)); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML(conf *Config) error {
	if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := m.getTemplate(".gohtml")
	if !ok {
		return nil
	}
	tmpl, ok := tmplEntry.(*htmltmpl.Template)
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(conf)); err != nil {
		return err
	}
	m.HTMLContent = buff.String()
	return nil
}

func (m *EmailMessage) Render(conf *Config) error {
	if err := m.renderText(conf); err != nil {
		return err
	}
	return m.renderHTML(conf)
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates loads the embedded email templates. Call once at startup.
func ParseEmailTemplates(conf *Config, logger Logger) {
	templates = make(tmplCache)

	root := "assets/templates/email"
	entries, err := fs.ReadDir(appfs.FS, root)
	if err != nil {
		logger.Error("parsing email templates", errors.Wrap(err, "reading templates dir"))
		return
	}

	for _, entry := range entries {
		fname := entry.Name()
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := fname[:strings.LastIndex(fname, ".")]
		cache, ok := templates[name]
		if !ok {
			templates[name] = make(tmplCacheEntry)
			cache = templates[name]
		}
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(appfs.FS, path.Join(root, "_base.txt"), path.Join(root, fname))
			if err != nil {
				logger.Error("parsing email templates", errors.Wrapf(err, "parsing %s", fname))
				continue
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			cache[ext] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(appfs.FS, path.Join(root, "_base.gohtml"), path.Join(root, fname))
			if err != nil {
				logger.Error("parsing email templates", errors.Wrapf(err, "parsing %s", fname))
				continue
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			cache[ext] = tmpl
		}
	}
}
