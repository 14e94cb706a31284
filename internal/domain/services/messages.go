package services

import (
	"fmt"
	"io"
	"strings"
	"text/template"
)

// MessageTemplates holds the text/template sources of every reply the bot sends.
// Templates are rendered with MessageData.
type MessageTemplates struct {
	Help             string `yaml:"help"`
	Checking         string `yaml:"checking"`
	NotMember        string `yaml:"not_member"`
	IdentityNotFound string `yaml:"identity_not_found"`
	AlreadyLinked    string `yaml:"already_linked"`
	Linked           string `yaml:"linked"`
	Replaced         string `yaml:"replaced"`
	TryLater         string `yaml:"try_later"`
}

// DefaultMessageTemplates returns the built-in English replies
func DefaultMessageTemplates() MessageTemplates {
	return MessageTemplates{
		Help: "If you are a member of the Telegram chat {{.ChatTitle}}, send me your Discord username " +
			"(nick or Nick#1234) to get the {{.RoleName}} role on the {{.GuildName}} server.",
		Checking:         "Checking...",
		NotMember:        "It looks like you are not a member of the private Telegram chat :(",
		IdentityNotFound: "It looks like you are not on the Discord server or the username is misspelled :(",
		AlreadyLinked:    "{{.New}} already has the {{.RoleName}} role.",
		Linked:           "Role added!",
		Replaced:         "The role was moved from {{.Old}} to {{.New}}.",
		TryLater:         "Something went wrong on our side, please try again later.",
	}
}

// MessageData is the data available to reply templates
type MessageData struct {
	ChatTitle string
	GuildName string
	RoleName  string
	Old       string
	New       string
}

// Messages renders replies from parsed templates
type Messages struct {
	templates map[string]*template.Template
}

// NewMessages parses the templates, falling back to the default for any empty entry
func NewMessages(overrides MessageTemplates) (*Messages, error) {
	defaults := DefaultMessageTemplates()
	sources := map[string][2]string{
		"help":               {overrides.Help, defaults.Help},
		"checking":           {overrides.Checking, defaults.Checking},
		"not_member":         {overrides.NotMember, defaults.NotMember},
		"identity_not_found": {overrides.IdentityNotFound, defaults.IdentityNotFound},
		"already_linked":     {overrides.AlreadyLinked, defaults.AlreadyLinked},
		"linked":             {overrides.Linked, defaults.Linked},
		"replaced":           {overrides.Replaced, defaults.Replaced},
		"try_later":          {overrides.TryLater, defaults.TryLater},
	}

	m := &Messages{templates: make(map[string]*template.Template, len(sources))}
	for name, src := range sources {
		text := src[0]
		if strings.TrimSpace(text) == "" {
			text = src[1]
		}
		tmpl, err := template.New(name).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid %s message template: %w", name, err)
		}
		if err := tmpl.Execute(io.Discard, MessageData{}); err != nil {
			return nil, fmt.Errorf("invalid %s message template: %w", name, err)
		}
		m.templates[name] = tmpl
	}
	return m, nil
}

func (m *Messages) render(name string, data MessageData) string {
	tmpl := m.templates[name]
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return tmpl.Root.String()
	}
	return b.String()
}

func (m *Messages) Help(data MessageData) string          { return m.render("help", data) }
func (m *Messages) Checking() string                      { return m.render("checking", MessageData{}) }
func (m *Messages) NotMember() string                     { return m.render("not_member", MessageData{}) }
func (m *Messages) IdentityNotFound() string              { return m.render("identity_not_found", MessageData{}) }
func (m *Messages) AlreadyLinked(data MessageData) string { return m.render("already_linked", data) }
func (m *Messages) Linked(data MessageData) string        { return m.render("linked", data) }
func (m *Messages) Replaced(data MessageData) string      { return m.render("replaced", data) }
func (m *Messages) TryLater() string                      { return m.render("try_later", MessageData{}) }
