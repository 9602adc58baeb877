package config

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/scopecrawl/internal/model"
)

const testConfigFile = `options:
  number_of_browsers: 3
  max_crawl_depth: 4
  max_duration: 90s
  scope_check: flexible
  excluded_elements:
    - description: logout
      element: a
      text: Log out
      enabled: true
allowed_resources:
  - regex: '^https://cdn\.test/.*$'
    enabled: true
contexts:
  - name: app
    include:
      - 'https?://app\.test/app/.*'
    exclude:
      - '.*/logout.*'
  - name: admin
    include:
      - 'https?://app\.test/admin/.*'
users:
  - name: alice
    context: app
    cookie: "session=abc; theme=dark"
    headers:
      X-Api-Key: k
  - name: ghost
    context: missing
scope:
  include:
    - 'https?://app\.test/.*'
exclusions:
  - '.*\.pdf'
headers:
  X-Scanner: scopecrawl
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func loadTestFile(t *testing.T) *File {
	t.Helper()

	f, err := LoadConfigFile(writeConfig(t, testConfigFile), model.NewOptions())
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	return f
}

// TestNewConfig documents the defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default mode is standard", func(t *testing.T) {
		t.Parallel()
		if cfg.Mode != model.ModeStandard {
			t.Errorf("expected standard mode, got %v", cfg.Mode)
		}
	})

	t.Run("default options", func(t *testing.T) {
		t.Parallel()
		if cfg.Options.NumberOfBrowsers != model.DefaultNumberOfBrowsers {
			t.Errorf("expected %d browsers, got %d", model.DefaultNumberOfBrowsers, cfg.Options.NumberOfBrowsers)
		}
		if cfg.Options.ScopeCheckPolicy != model.ScopeCheckStrict {
			t.Errorf("expected strict scope check, got %v", cfg.Options.ScopeCheckPolicy)
		}
	})

	t.Run("results are saved under the XDG data dir", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveToDB || cfg.DBDir != XDGDataDir() {
			t.Errorf("SaveToDB = %v, DBDir = %q", cfg.SaveToDB, cfg.DBDir)
		}
	})

	t.Run("default TorStartupTimeout is 3 minutes", func(t *testing.T) {
		t.Parallel()
		if cfg.TorStartupTimeout != 3*time.Minute {
			t.Errorf("expected TorStartupTimeout to be 3m, got %v", cfg.TorStartupTimeout)
		}
	})
}

// TestConfigValidate tests one validation rule per case.
// testOnionHost is a valid v3 onion service name.
const testOnionHost = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion"

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.StartURL = "http://app.test/app/"
		return cfg
	}

	testCases := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{name: "valid config", modify: func(*Config) {}},
		{name: "no start URL", modify: func(c *Config) { c.StartURL = "" }, want: ErrNoTarget},
		{name: "invalid options", modify: func(c *Config) { c.Options.NumberOfBrowsers = 0 }, want: model.ErrInvalidBrowserCount},
		{name: "conflicting formats", modify: func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, want: ErrConflictingReportFormats},
		{name: "tor and proxy", modify: func(c *Config) { c.UseTor, c.ProxyAddress = true, "127.0.0.1:9050" }, want: ErrConflictingUpstream},
		{name: "onion without tor", modify: func(c *Config) { c.StartURL = "http://" + testOnionHost + "/" }, want: ErrOnionNeedsTor},
		{name: "onion over tor", modify: func(c *Config) { c.StartURL, c.UseTor = "http://"+testOnionHost+"/", true }},
		{name: "onion over proxy", modify: func(c *Config) { c.StartURL, c.ProxyAddress = "http://"+testOnionHost+":8080/", "127.0.0.1:9050" }},
		{name: "malformed onion", modify: func(c *Config) { c.StartURL, c.UseTor = "http://abc.onion/", true }, want: ErrInvalidOnionAddress},
		{name: "tor timeout", modify: func(c *Config) { c.UseTor, c.TorStartupTimeout = true, 0 }, want: ErrInvalidTimeout},
		{name: "negative fail threshold", modify: func(c *Config) { c.FailIfFoundLessThan = -1 }, want: ErrInvalidThreshold},
		{name: "negative warn threshold", modify: func(c *Config) { c.WarnIfFoundLessThan = -1 }, want: ErrInvalidThreshold},
		{name: "negative rate", modify: func(c *Config) { c.RequestsPerSecond = -1 }, want: ErrInvalidRate},
		{name: "in scope only without scope", modify: func(c *Config) { c.InScopeOnly = true }, want: ErrNoScope},
		{name: "user without file", modify: func(c *Config) { c.UserName = "alice" }, want: ErrConfigNotFound},
		{name: "save without dir", modify: func(c *Config) { c.DBDir = "" }, want: ErrNoDBDir},
		{name: "no save without dir", modify: func(c *Config) { c.DBDir, c.SaveToDB = "", false }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.scopecrawl", model.NewOptions())
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads options over the base", func(t *testing.T) {
		t.Parallel()

		f := loadTestFile(t)
		o := f.Options
		if o.NumberOfBrowsers != 3 || o.MaxCrawlDepth != 4 || o.MaxDuration != 90*time.Second {
			t.Errorf("options = %+v", o)
		}
		if o.ScopeCheckPolicy != model.ScopeCheckFlexible {
			t.Errorf("expected flexible scope check, got %v", o.ScopeCheckPolicy)
		}
		if o.EventWait != model.DefaultEventWait || !o.RandomInputs {
			t.Error("options absent from the file should keep their defaults")
		}
		if len(o.ExcludedElements) != 1 || o.ExcludedElements[0].Text != "Log out" {
			t.Errorf("excluded elements = %+v", o.ExcludedElements)
		}
		if len(o.AllowedResources) != 1 || !o.AllowedResources[0].Matches("https://cdn.test/lib.woff") {
			t.Errorf("allowed resources = %+v", o.AllowedResources)
		}
	})

	t.Run("keeps default allowed resources", func(t *testing.T) {
		t.Parallel()

		f, err := LoadConfigFile(writeConfig(t, "exclusions: ['.*\\.zip']\n"), model.NewOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.Options.AllowedResources) != len(model.DefaultAllowedResources()) {
			t.Errorf("allowed resources = %+v", f.Options.AllowedResources)
		}
		if len(f.Exclusions) != 1 {
			t.Errorf("exclusions = %v", f.Exclusions)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(writeConfig(t, `invalid: yaml: content: [}`), model.NewOptions()); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("returns error for invalid allowed resource", func(t *testing.T) {
		t.Parallel()

		content := "allowed_resources:\n  - regex: '('\n    enabled: true\n"
		if _, err := LoadConfigFile(writeConfig(t, content), model.NewOptions()); err == nil {
			t.Error("expected error for invalid regex")
		}
	})
}

func TestFileBuilders(t *testing.T) {
	t.Parallel()

	f := loadTestFile(t)

	t.Run("context", func(t *testing.T) {
		t.Parallel()

		ctx, err := f.Context("app")
		if err != nil {
			t.Fatalf("Context() error: %v", err)
		}
		if !ctx.IsInContext("http://app.test/app/page") || ctx.IsInContext("http://app.test/app/logout") {
			t.Error("context membership mismatch")
		}
		if _, err := f.Context("nope"); !errors.Is(err, ErrUnknownContext) {
			t.Errorf("expected ErrUnknownContext, got %v", err)
		}
	})

	t.Run("user", func(t *testing.T) {
		t.Parallel()

		u, err := f.User("alice")
		if err != nil {
			t.Fatalf("User() error: %v", err)
		}
		if u.Context() == nil || u.Context().Name() != "app" || !u.HasCredentials() {
			t.Errorf("user = %+v", u)
		}
		h := http.Header{}
		u.ApplyCredentials(h)
		if h.Get("X-Api-Key") != "k" || h.Get("Cookie") == "" {
			t.Errorf("headers = %v", h)
		}

		if _, err := f.User("bob"); !errors.Is(err, ErrUnknownUser) {
			t.Errorf("expected ErrUnknownUser, got %v", err)
		}
		if _, err := f.User("ghost"); !errors.Is(err, ErrUnknownContext) {
			t.Errorf("expected ErrUnknownContext for a user in a missing context, got %v", err)
		}
	})

	t.Run("scope", func(t *testing.T) {
		t.Parallel()

		def, err := f.ScopeDefinition()
		if err != nil {
			t.Fatalf("ScopeDefinition() error: %v", err)
		}
		if !def.IsInScope("https://app.test/x") || def.IsInScope("https://other.test/") {
			t.Error("scope mismatch")
		}

		empty := &File{}
		if def, err := empty.ScopeDefinition(); def != nil || err != nil {
			t.Errorf("empty scope = %v, %v", def, err)
		}
	})
}

func TestConfigTarget(t *testing.T) {
	t.Parallel()

	f := loadTestFile(t)

	testCases := []struct {
		name      string
		modify    func(*Config)
		wantMode  model.ScopeMode
		wantUser  string
		wantError error
	}{
		{
			name:     "host bound",
			modify:   func(*Config) {},
			wantMode: model.ScopeModeUnrestricted,
		},
		{
			name:     "context",
			modify:   func(c *Config) { c.ContextName = "app" },
			wantMode: model.ScopeModeContextBound,
		},
		{
			name:     "user implies its context",
			modify:   func(c *Config) { c.UserName = "alice" },
			wantMode: model.ScopeModeContextBound,
			wantUser: "alice",
		},
		{
			name:     "user with its own context",
			modify:   func(c *Config) { c.UserName, c.ContextName = "alice", "app" },
			wantMode: model.ScopeModeContextBound,
			wantUser: "alice",
		},
		{
			name:      "user outside context",
			modify:    func(c *Config) { c.UserName, c.ContextName = "alice", "admin" },
			wantError: ErrUnknownUser,
		},
		{
			name:     "in scope only",
			modify:   func(c *Config) { c.InScopeOnly = true },
			wantMode: model.ScopeModeInScopeOnly,
		},
		{
			name:      "start URL outside context",
			modify:    func(c *Config) { c.ContextName = "admin" },
			wantError: model.ErrStartURINotInContext,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			cfg.StartURL = "http://app.test/app/"
			cfg.File = f
			cfg.Options = f.Options
			tc.modify(cfg)

			target, err := cfg.Target()
			if tc.wantError != nil {
				if !errors.Is(err, tc.wantError) {
					t.Fatalf("expected %v, got %v", tc.wantError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Target() error: %v", err)
			}
			if target.ScopeMode() != tc.wantMode {
				t.Errorf("scope mode = %v, want %v", target.ScopeMode(), tc.wantMode)
			}
			if tc.wantUser != "" && (target.User() == nil || target.User().Name() != tc.wantUser) {
				t.Errorf("user = %v, want %s", target.User(), tc.wantUser)
			}
			if target.Options().NumberOfBrowsers != 3 {
				t.Error("target should carry the file options")
			}
		})
	}

	t.Run("without file", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.StartURL = "https://app.test/"
		target, err := cfg.Target()
		if err != nil {
			t.Fatalf("Target() error: %v", err)
		}
		if target.Context() != nil || cfg.Exclusions() != nil || cfg.UpstreamHeaders() != nil {
			t.Error("no file means no context, exclusions or headers")
		}
		if def, err := cfg.GlobalScope(); def != nil || err != nil {
			t.Errorf("GlobalScope() = %v, %v", def, err)
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := writeConfig(t, "options: {}")
		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"cache":  XDGCacheDir(),
	} {
		if filepath.Base(dir) != AppName {
			t.Errorf("XDG %s dir = %q, want it to end in %s", name, dir, AppName)
		}
	}
}
