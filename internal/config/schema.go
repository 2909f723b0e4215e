package config

// Config holds campusfeed configuration.
// Loaded from ./config.yaml or ~/.campusfeed/config.yaml.
type Config struct {
	Model   ModelCfg             `mapstructure:"model" yaml:"model"`
	OCR     OCRCfg               `mapstructure:"ocr" yaml:"ocr"`
	Targets map[string]TargetCfg `mapstructure:"targets" yaml:"targets"`
	Publish PublishCfg           `mapstructure:"publish" yaml:"publish"`
	Discord DiscordCfg           `mapstructure:"discord" yaml:"discord"`
}

// ModelCfg selects the extraction model. A "/" in the name routes to the
// aggregator backend, a bare name to the direct backend.
type ModelCfg struct {
	Name        string  `mapstructure:"name" yaml:"name"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	// Fallbacks are tried in order by the rules pipeline when the primary
	// model yields nothing usable.
	Fallbacks []string `mapstructure:"fallbacks" yaml:"fallbacks"`
}

// OCRCfg configures the optional OCR reference-text provider.
type OCRCfg struct {
	Type    string `mapstructure:"type" yaml:"type"` // "mistral-ocr"
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// TargetCfg configures one document source on the school site.
type TargetCfg struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	URL           string `mapstructure:"url" yaml:"url"` // listing page to scrape
	CallMode      string `mapstructure:"call_mode" yaml:"call_mode"`
	MergeStrategy string `mapstructure:"merge_strategy" yaml:"merge_strategy"`
	DPI           int    `mapstructure:"dpi" yaml:"dpi"`
}

// PublishCfg configures the static-content git repository.
type PublishCfg struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Repo        string `mapstructure:"repo" yaml:"repo"` // https remote without credentials
	Branch      string `mapstructure:"branch" yaml:"branch"`
	Token       string `mapstructure:"token" yaml:"token"`
	AuthorName  string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email"`
}

// DiscordCfg configures webhook notifications.
type DiscordCfg struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelCfg{
			Name:        "gemini-2.5-flash",
			APIKey:      "${GEMINI_API_KEY}",
			Temperature: 0.1,
			MaxTokens:   2000,
		},
		OCR: OCRCfg{
			Type:    "mistral-ocr",
			APIKey:  "${MISTRAL_API_KEY}",
			Enabled: false,
		},
		Targets: map[string]TargetCfg{
			"classes": {
				Enabled:       true,
				URL:           "https://school.example.jp/campuslife/timetable.html",
				CallMode:      "triple",
				MergeStrategy: "deep",
				DPI:           200,
			},
			"meals": {
				Enabled:       true,
				URL:           "https://school.example.jp/dormitory/menu.html",
				CallMode:      "none",
				MergeStrategy: "deep",
				DPI:           200,
			},
			"events": {
				Enabled:       true,
				URL:           "https://school.example.jp/dormitory/calendar.html",
				CallMode:      "none",
				MergeStrategy: "deep",
				DPI:           200,
			},
			"rules": {
				Enabled:       false,
				URL:           "https://school.example.jp/about/rules.html",
				CallMode:      "none",
				MergeStrategy: "deep",
				DPI:           200,
			},
		},
		Publish: PublishCfg{
			Enabled:     false,
			Branch:      "main",
			Token:       "${GITHUB_TOKEN}",
			AuthorName:  "campusfeed-bot",
			AuthorEmail: "bot@campusfeed.invalid",
		},
		Discord: DiscordCfg{
			Enabled:    false,
			WebhookURL: "${DISCORD_WEBHOOK_URL}",
		},
	}
}

// Target returns a target config by name.
func (c *Config) Target(name string) (TargetCfg, bool) {
	t, ok := c.Targets[name]
	return t, ok
}

// EnabledTargets returns the names of enabled targets in a fixed order.
func (c *Config) EnabledTargets() []string {
	var names []string
	for _, name := range []string{"classes", "meals", "events", "rules"} {
		if t, ok := c.Targets[name]; ok && t.Enabled {
			names = append(names, name)
		}
	}
	return names
}
