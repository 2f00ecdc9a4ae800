package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Sheets struct {
		Dir             string `yaml:"dir"`              // directory of .csv sheets
		DefaultSheet    string `yaml:"default_sheet"`    // used when process_all is false
		ProcessAll      bool   `yaml:"process_all"`
		SheetNameFilter string `yaml:"sheet_name_filter"` // optional regexp
	} `yaml:"sheets"`

	Mail struct {
		SMTPHost        string `yaml:"smtp_host"`
		SMTPPort        int    `yaml:"smtp_port"`
		Username        string `yaml:"username"`
		SenderName      string `yaml:"sender_name"`
		FromAddress     string `yaml:"from_address"`
		ResumePath      string `yaml:"resume_path"`
		ResumeDriveLink string `yaml:"resume_drive_link"`
	} `yaml:"mail"`

	Rate struct {
		DelayMinSeconds int `yaml:"delay_min_seconds"`
		DelayMaxSeconds int `yaml:"delay_max_seconds"`
		DailyLimit      int `yaml:"daily_limit"`
	} `yaml:"rate"`

	FollowUp struct {
		IntervalDays int `yaml:"interval_days"`
		MaxFollowUps int `yaml:"max_follow_ups"`
	} `yaml:"follow_up"`

	Responses struct {
		Enabled  bool   `yaml:"enabled"`
		IMAPHost string `yaml:"imap_host"`
		IMAPPort int    `yaml:"imap_port"`
		Username string `yaml:"username"`
		Mailbox  string `yaml:"mailbox"`
	} `yaml:"responses"`

	API struct {
		Port int `yaml:"port"`
	} `yaml:"api"`
}

func Default() Config {
	var cfg Config
	cfg.App.DataDir = "."
	cfg.Sheets.Dir = "sheets"
	cfg.Sheets.DefaultSheet = "Sheet1"
	cfg.Sheets.ProcessAll = true
	cfg.Mail.SMTPHost = "smtp.gmail.com"
	cfg.Mail.SMTPPort = 587
	cfg.Mail.SenderName = "Job Applicant"
	cfg.Rate.DelayMinSeconds = 60
	cfg.Rate.DelayMaxSeconds = 120
	cfg.Rate.DailyLimit = 50
	cfg.FollowUp.IntervalDays = 7
	cfg.FollowUp.MaxFollowUps = 3
	cfg.Responses.Mailbox = "INBOX"
	cfg.API.Port = 8407
	return cfg
}

// Load reads the YAML file and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv keeps parity with the old .env-driven deployment: anything secret
// or machine-specific can stay out of the YAML file.
func applyEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setStr("CVMAILER_DATA_DIR", &cfg.App.DataDir)
	setStr("CVMAILER_SHEETS_DIR", &cfg.Sheets.Dir)
	setStr("CVMAILER_SMTP_HOST", &cfg.Mail.SMTPHost)
	setInt("CVMAILER_SMTP_PORT", &cfg.Mail.SMTPPort)
	setStr("CVMAILER_SMTP_USER", &cfg.Mail.Username)
	setStr("CVMAILER_SENDER_NAME", &cfg.Mail.SenderName)
	setStr("CVMAILER_RESUME_PATH", &cfg.Mail.ResumePath)
	setStr("CVMAILER_RESUME_DRIVE_LINK", &cfg.Mail.ResumeDriveLink)
	setInt("CVMAILER_DAILY_LIMIT", &cfg.Rate.DailyLimit)
	setInt("CVMAILER_FOLLOW_UP_DAYS", &cfg.FollowUp.IntervalDays)
	setInt("CVMAILER_MAX_FOLLOW_UPS", &cfg.FollowUp.MaxFollowUps)
}

func (c Config) FollowUpInterval() time.Duration {
	return time.Duration(c.FollowUp.IntervalDays) * 24 * time.Hour
}

// SaveAtomic writes cfg via a temp file swap, keeping one .bak generation.
func SaveAtomic(path string, cfg Config) error {
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	bak := path + ".bak"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	_ = os.Remove(bak)
	_ = os.Rename(path, bak)
	return os.Rename(tmp, path)
}
