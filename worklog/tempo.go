package worklog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type TempoConfig struct {
	Enabled  bool   `envconfig:"ENABLE_TEMPO" default:"false"`
	BaseURL  string `envconfig:"TEMPO_BASE_URL"`
	Username string `envconfig:"TEMPO_USERNAME"`
	Password string `envconfig:"TEMPO_PASSWORD"`
	Timeout  int    `envconfig:"TEMPO_TIMEOUT_SECONDS" default:"30"`
}

// LoadConfig reads the worklog source configuration from the
// environment and returns the matching source. With ENABLE_TEMPO unset
// the returned source is a no-op.
func LoadConfig() (Source, error) {
	cfg := &TempoConfig{}
	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return &DisabledSource{}, nil
	}
	return NewTempoSource(cfg), nil
}

// DisabledSource reports no worklog integration. Reconciliation leaves
// invoices untouched when the source is disabled.
type DisabledSource struct{}

func (s *DisabledSource) Enabled() bool { return false }

func (s *DisabledSource) Fetch(ctx context.Context, username string, from, to time.Time) ([]Worklog, error) {
	return nil, nil
}

// TempoSource fetches worklogs from the Tempo timesheets REST API.
type TempoSource struct {
	cfg    *TempoConfig
	client *http.Client
}

func NewTempoSource(cfg *TempoConfig) *TempoSource {
	return &TempoSource{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}
}

func (s *TempoSource) Enabled() bool { return true }

type tempoWorklog struct {
	ID               int64  `json:"id"`
	Comment          string `json:"comment"`
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
	Issue            struct {
		Key     string `json:"key"`
		Summary string `json:"summary"`
	} `json:"issue"`
}

func (s *TempoSource) Fetch(ctx context.Context, username string, from, to time.Time) ([]Worklog, error) {
	endpoint := fmt.Sprintf("%s/rest/tempo-timesheets/3/worklogs", s.cfg.BaseURL)
	query := url.Values{}
	query.Set("username", username)
	query.Set("dateFrom", from.Format("2006-01-02"))
	query.Set("dateTo", to.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tempo worklog request for %s failed with status %d", username, resp.StatusCode)
	}

	entries := []tempoWorklog{}
	err = json.NewDecoder(resp.Body).Decode(&entries)
	if err != nil {
		return nil, err
	}

	worklogs := make([]Worklog, 0, len(entries))
	for _, entry := range entries {
		worklogs = append(worklogs, Worklog{
			ID:               entry.ID,
			IssueKey:         entry.Issue.Key,
			IssueTitle:       entry.Issue.Summary,
			Description:      entry.Comment,
			TimeSpentSeconds: entry.TimeSpentSeconds,
		})
	}
	return worklogs, nil
}
