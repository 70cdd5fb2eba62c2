package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSSMClient struct {
	mock.Mock
}

func (m *MockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ssm.GetParameterOutput), args.Error(1)
}

func paramOutput(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(v)}}
}

func paramNamed(name string) interface{} {
	return mock.MatchedBy(func(in *ssm.GetParameterInput) bool {
		return aws.ToString(in.Name) == name && aws.ToBool(in.WithDecryption)
	})
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultTimezone, cfg.Timezone)
	assert.Equal(t, defaultSchedule, cfg.Schedule)
	assert.True(t, cfg.Cache.Enabled)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
timezone: Europe/Berlin
calendars:
  - url: https://example.com/work.ics
  - kind: google
    id: team
    calendar_id: team@example.com
notion:
  databases:
    abc123:
      name: Assignments
      date_property: Due
      fields: [Priority, Course]
smtp:
  host: smtp.example.com
  to: [me@example.com]
cache:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, defaultListen, cfg.Listen)
	require.Len(t, cfg.Calendars, 2)
	assert.Equal(t, KindICS, cfg.Calendars[0].Kind)
	assert.Equal(t, "cal-1", cfg.Calendars[0].ID)
	assert.Equal(t, KindGoogle, cfg.Calendars[1].Kind)
	assert.Equal(t, "team", cfg.Calendars[1].ID)
	assert.Equal(t, []string{"Priority", "Course"}, cfg.Notion.Databases["abc123"].Fields)
	assert.Equal(t, "Due", cfg.Notion.Databases["abc123"].DateProperty)
	assert.Equal(t, defaultSMTPPort, cfg.SMTP.Port)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, defaultCachePath, cfg.Cache.Path)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("calendars: {"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Calendars = append(cfg.Calendars, CalendarConfig{ID: "w", URL: "https://example.com/w.ics"})
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Calendars, loaded.Calendars)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Calendars = []CalendarConfig{
		{ID: "a", Kind: KindICS},
		{ID: "b", Kind: KindGoogle},
		{ID: "c", Kind: "caldav"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendar a: url is required")
	assert.Contains(t, err.Error(), "calendar b: google credentials are required")
	assert.Contains(t, err.Error(), `unknown kind "caldav"`)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TIMEZONE", "Asia/Tokyo")
	t.Setenv("ICS_URLS", " https://example.com/a.ics , https://example.com/b.ics,,")
	t.Setenv("NOTION_TOKEN", "ntn")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "bot@example.com")
	t.Setenv("SMTP_PASS", "pw")
	t.Setenv("TO_EMAIL", "a@example.com, b@example.com")
	t.Setenv("GOOGLE_CREDENTIALS", `{"type":"service_account"}`)

	cfg := DefaultConfig()
	cfg.Calendars = []CalendarConfig{{ID: "a", URL: "https://example.com/a.ics"}}
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	require.Len(t, cfg.Calendars, 2)
	assert.Equal(t, "https://example.com/b.ics", cfg.Calendars[1].URL)
	assert.Equal(t, "cal-2", cfg.Calendars[1].ID)
	assert.Equal(t, "ntn", cfg.Notion.Token)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "bot@example.com", cfg.SMTP.Username)
	assert.Equal(t, "pw", cfg.SMTP.Password)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.SMTP.To)
	assert.Equal(t, `{"type":"service_account"}`, cfg.GoogleCredentials)
}

func TestApplyEnvBadPort(t *testing.T) {
	t.Setenv("SMTP_PORT", "smtp")
	assert.Error(t, DefaultConfig().ApplyEnv())
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AGENDA_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("AGENDA_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("AGENDA_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("AGENDA_TEST_DOTENV"))
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("SMTP_PASS_PARAM", "/agenda/smtp-pass")
	t.Setenv("NOTION_TOKEN_PARAM", "/agenda/notion")
	t.Setenv("GOOGLE_CREDS_PARAM", "")

	m := new(MockSSMClient)
	m.On("GetParameter", mock.Anything, paramNamed("/agenda/smtp-pass")).Return(paramOutput("pw"), nil)
	m.On("GetParameter", mock.Anything, paramNamed("/agenda/notion")).Return(paramOutput("ntn"), nil)

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadSecrets(context.Background(), m))
	assert.Equal(t, "pw", cfg.SMTP.Password)
	assert.Equal(t, "ntn", cfg.Notion.Token)
	assert.Empty(t, cfg.GoogleCredentials)
	m.AssertExpectations(t)
	m.AssertNumberOfCalls(t, "GetParameter", 2)
}

func TestLoadSecretsErrors(t *testing.T) {
	t.Setenv("SMTP_PASS_PARAM", "/agenda/smtp-pass")
	t.Setenv("NOTION_TOKEN_PARAM", "")
	t.Setenv("GOOGLE_CREDS_PARAM", "")

	m := new(MockSSMClient)
	m.On("GetParameter", mock.Anything, mock.Anything).Return(nil, errors.New("access denied")).Once()
	err := DefaultConfig().LoadSecrets(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/agenda/smtp-pass")

	m = new(MockSSMClient)
	m.On("GetParameter", mock.Anything, mock.Anything).Return(&ssm.GetParameterOutput{}, nil)
	err = DefaultConfig().LoadSecrets(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("AGENDA_TEST_KEY", "  value  ")
	assert.Equal(t, "value", getEnvOrDefault("AGENDA_TEST_KEY", "d"))
	assert.Equal(t, "d", getEnvOrDefault("AGENDA_TEST_MISSING_KEY_12345", "d"))
}

func TestIsLambda(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	assert.False(t, IsLambda())
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "agenda")
	assert.True(t, IsLambda())
}
