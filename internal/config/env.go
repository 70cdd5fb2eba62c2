package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	appLog "dailyagenda/internal/log"
)

// LoadDotEnv loads variables from path into the process environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Debug("no .env file", "path", path)
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file settings with environment variables.
//
// ICS_URLS is a comma-separated list; each URL not already configured is
// appended as an ics calendar. TO_EMAIL is a comma-separated list of
// recipients.
func (c *Config) ApplyEnv() error {
	if v := getEnvOrDefault("TIMEZONE", ""); v != "" {
		c.Timezone = v
	}
	if v := getEnvOrDefault("NOTION_TOKEN", ""); v != "" {
		c.Notion.Token = v
	}
	if v := getEnvOrDefault("GOOGLE_CREDENTIALS", ""); v != "" {
		c.GoogleCredentials = v
	}
	if v := getEnvOrDefault("SMTP_HOST", ""); v != "" {
		c.SMTP.Host = v
	}
	if v := getEnvOrDefault("SMTP_PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.SMTP.Port = port
	}
	if v := getEnvOrDefault("SMTP_USER", ""); v != "" {
		c.SMTP.Username = v
	}
	if v := getEnvOrDefault("SMTP_PASS", ""); v != "" {
		c.SMTP.Password = v
	}
	if v := getEnvOrDefault("TO_EMAIL", ""); v != "" {
		c.SMTP.To = splitList(v)
	}

	known := make(map[string]bool, len(c.Calendars))
	for _, cal := range c.Calendars {
		known[cal.URL] = true
	}
	for _, u := range splitList(getEnvOrDefault("ICS_URLS", "")) {
		if known[u] {
			continue
		}
		known[u] = true
		c.Calendars = append(c.Calendars, CalendarConfig{Kind: KindICS, URL: u})
	}

	c.Normalize()
	return nil
}

// IsLambda reports whether the process runs inside AWS Lambda.
func IsLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// ParameterGetter is the subset of the SSM client used to read secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewSSMClient builds an SSM client from the default AWS configuration.
func NewSSMClient(ctx context.Context) (*ssm.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// LoadSecrets reads secrets from Parameter Store. Each *_PARAM variable
// names a parameter; unset variables are skipped.
func (c *Config) LoadSecrets(ctx context.Context, getter ParameterGetter) error {
	targets := []struct {
		env string
		dst *string
	}{
		{"SMTP_PASS_PARAM", &c.SMTP.Password},
		{"NOTION_TOKEN_PARAM", &c.Notion.Token},
		{"GOOGLE_CREDS_PARAM", &c.GoogleCredentials},
	}
	for _, t := range targets {
		name := getEnvOrDefault(t.env, "")
		if name == "" {
			continue
		}
		value, err := getParameter(ctx, getter, name)
		if err != nil {
			return err
		}
		*t.dst = value
	}
	return nil
}

func getParameter(ctx context.Context, getter ParameterGetter, name string) (string, error) {
	result, err := getter.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s is empty", name)
	}
	return *result.Parameter.Value, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
