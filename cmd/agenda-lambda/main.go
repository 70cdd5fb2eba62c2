package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"dailyagenda/internal/agenda"
	"dailyagenda/internal/config"
	"dailyagenda/internal/digest"
	appLog "dailyagenda/internal/log"
)

// Event is the scheduler payload. Date, if set, overrides today.
type Event struct {
	Date string `json:"date,omitempty"`
}

// Response is the Lambda result.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	RunID      string `json:"runId,omitempty"`
}

// loadConfig builds configuration from CONFIG_PATH (optional), the
// environment and Parameter Store.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	// The function filesystem is ephemeral.
	cfg.Cache.Enabled = false

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if config.IsLambda() {
		client, err := config.NewSSMClient(ctx)
		if err != nil {
			return nil, err
		}
		if err := cfg.LoadSecrets(ctx, client); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

func handler(ctx context.Context, event Event) (Response, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		appLog.Error("config load failed", err)
		return Response{StatusCode: 500, Message: "config error"}, err
	}

	runner, err := digest.NewFromConfig(ctx, cfg, nil)
	if err != nil {
		appLog.Error("runner init failed", err)
		return Response{StatusCode: 500, Message: "init error"}, err
	}

	date := runner.Today()
	if event.Date != "" {
		if date, err = agenda.ParseDate(event.Date); err != nil {
			return Response{StatusCode: 400, Message: "invalid date"}, err
		}
	}

	rep, err := runner.Run(ctx, date)
	if err != nil {
		appLog.Error("digest run failed", err, "date", date.String())
		resp := Response{StatusCode: 500, Message: "send error"}
		if rep != nil {
			resp.RunID = rep.RunID
		}
		return resp, err
	}
	return Response{StatusCode: 200, Message: "digest sent", RunID: rep.RunID}, nil
}

func main() {
	appLog.SetOutput(os.Stdout)
	appLog.SetLevel(appLog.ParseLevel(os.Getenv("LOG_LEVEL")))
	lambda.Start(handler)
}
