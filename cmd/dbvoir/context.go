package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"dbvoir/internal/api"
	"dbvoir/internal/config"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	dotEnvFiles  []string
	configErr    error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// ensureConfig reads .env files, then the TOML config, once per invocation.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := c.configFlagValue()
		loaded, err := config.LoadDotEnv(config.DotEnvCandidates(path)...)
		if err != nil {
			c.configErr = err
			return
		}
		c.dotEnvFiles = loaded
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// apiClient returns a client for the configured daemon API.
func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
}

func wrapAPIError(err error, bind string) error {
	switch {
	case errors.Is(err, api.ErrAPIUnavailable):
		return errors.New("daemon API disabled; set paths.api_bind to use this command")
	case api.IsAPIUnavailable(err):
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `dbvoir run`", bind)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// viaDaemon runs fn against the daemon API. It reports false without error
// when the API is disabled or nothing is listening, so callers can fall back
// to working on local state.
func (c *commandContext) viaDaemon(fn func(*api.Client) error) (bool, error) {
	client, err := c.apiClient()
	if errors.Is(err, api.ErrAPIUnavailable) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if err := fn(client); err != nil {
		if api.IsAPIUnavailable(err) {
			return false, nil
		}
		return true, err
	}
	return true, nil
}
