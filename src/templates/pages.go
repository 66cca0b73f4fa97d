package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"
	textTemplate "text/template"

	"github.com/khabaroff/shop-admin-console/src/models"
	"gopkg.in/yaml.v3"
)

//go:embed pages/*
var pageFiles embed.FS

// PageConfig holds the console wording from pages/config.yaml
type PageConfig struct {
	Branding struct {
		Name    string `yaml:"name"`
		Tagline string `yaml:"tagline"`
	} `yaml:"branding"`

	SignIn SignInText `yaml:"signin"`
	Reset  ResetText  `yaml:"reset"`

	ResetLink struct {
		Subject    string `yaml:"subject"`
		Intro      string `yaml:"intro"`
		IgnoreText string `yaml:"ignore_text"`
	} `yaml:"reset_link"`
}

// SignInText is the wording of the sign-in page
type SignInText struct {
	Title            string `yaml:"title"`
	EmailLabel       string `yaml:"email_label"`
	PasswordLabel    string `yaml:"password_label"`
	ButtonText       string `yaml:"button_text"`
	ForgotTitle      string `yaml:"forgot_title"`
	ForgotButtonText string `yaml:"forgot_button_text"`
	ExpiredNotice    string `yaml:"expired_notice"`
	LoggedOutNotice  string `yaml:"logged_out_notice"`
	ResetSentNotice  string `yaml:"reset_sent_notice"`
	ResetDoneNotice  string `yaml:"reset_done_notice"`
}

// ResetText is the wording of the reset-password page
type ResetText struct {
	Title         string `yaml:"title"`
	PasswordLabel string `yaml:"password_label"`
	ButtonText    string `yaml:"button_text"`
}

var (
	configOnce    sync.Once
	pageConfig    *PageConfig
	pageConfigErr error
)

// LoadPageConfig loads the embedded page wording once
func LoadPageConfig() (*PageConfig, error) {
	configOnce.Do(func() {
		data, err := pageFiles.ReadFile("pages/config.yaml")
		if err != nil {
			pageConfigErr = fmt.Errorf("failed to read page config: %w", err)
			return
		}
		var cfg PageConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			pageConfigErr = fmt.Errorf("failed to parse page config: %w", err)
			return
		}
		pageConfig = &cfg
	})
	return pageConfig, pageConfigErr
}

// SignInData holds data for the sign-in page
type SignInData struct {
	Brand  string
	Text   SignInText
	Notice string
	Error  string
	Email  string
	Next   string
}

// ResetData holds data for the reset-password page
type ResetData struct {
	Brand  string
	Text   ResetText
	Action string
	Error  string
}

// ConsoleData holds data for the console shell
type ConsoleData struct {
	Brand   string
	Section string
	Admin   *models.Admin
	Feed    models.NotificationFeed
}

// ResetLinkData holds data for the reset link message
type ResetLinkData struct {
	Subject       string
	Intro         string
	IgnoreText    string
	Link          string
	ExpiryMinutes int
}

// RenderSignIn renders the sign-in page
func RenderSignIn(data SignInData) (string, error) {
	return renderHTML("signin.html", data)
}

// RenderReset renders the reset-password page
func RenderReset(data ResetData) (string, error) {
	return renderHTML("reset.html", data)
}

// RenderConsole renders the console shell
func RenderConsole(data ConsoleData) (string, error) {
	return renderHTML("console.html", data)
}

// RenderResetLinkText renders the plain text reset link message
func RenderResetLinkText(data ResetLinkData) (string, error) {
	tmplData, err := pageFiles.ReadFile("pages/reset-link.txt")
	if err != nil {
		return "", fmt.Errorf("failed to read reset-link.txt: %w", err)
	}

	tmpl, err := textTemplate.New("reset-link").Parse(string(tmplData))
	if err != nil {
		return "", fmt.Errorf("failed to parse reset-link template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute reset-link template: %w", err)
	}
	return buf.String(), nil
}

func renderHTML(name string, data any) (string, error) {
	tmplData, err := pageFiles.ReadFile("pages/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}

	tmpl, err := template.New(name).Parse(string(tmplData))
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return buf.String(), nil
}
