// Command lambda publishes one event per invocation behind API Gateway. Every
// platform runs in parallel inside the invocation; nothing is queued.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/assets"
	"github.com/hormur/event-syndicator/internal/browser"
	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/dispatch"
	"github.com/hormur/event-syndicator/internal/handlers"
	"github.com/hormur/event-syndicator/internal/workflow"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
}

type app struct {
	handler *handlers.Handler
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	cfg.Mode = config.ModeParallel

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	cfg.Credentials, err = config.LoadSSMCredentials(ctx, ssm.NewFromConfig(awsCfg), cfg.SSMCredentialsPrefix, cfg.Platforms, cfg.Credentials)
	if err != nil {
		log.Fatal().Err(err).Str("prefix", cfg.SSMCredentialsPrefix).Msg("Failed to read credentials from SSM")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	chromePath := cfg.ChromePath
	if chromePath == "" {
		chromePath = os.Getenv("CHROMIUM_PATH")
	}
	launcher := browser.NewChromeLauncher(browser.ChromeOptions{
		ExecPath: chromePath,
		Headless: true,
	})
	engine := workflow.NewEngine(launcher, assets.NewPipeline(nil, nil), cfg.Credentials, workflow.DefaultRegistry(), workflow.Options{
		NavigationTimeout: cfg.NavigationTimeout,
		StepTimeout:       cfg.StepTimeout,
		SubmitTimeout:     cfg.SubmitTimeout,
		StrictVerify:      cfg.StrictVerify,
	})
	dispatcher := dispatch.New(cfg.Platforms, dispatch.NewParallelStrategy(engine))

	log.Info().Interface("platforms", cfg.Platforms).Msg("Publish Lambda ready")

	a := &app{handler: handlers.NewHandler(dispatcher, nil, nil, nil)}
	lambda.Start(a.handle)
}

func (a *app) handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch req.HTTPMethod {
	case http.MethodOptions:
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: corsHeaders}, nil
	case http.MethodPost:
	default:
		return respond(http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"}), nil
	}

	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return respond(http.StatusBadRequest, map[string]string{"error": "Corps de requête invalide"}), nil
		}
		body = string(decoded)
	}

	log.Info().Str("request_id", req.RequestContext.RequestID).Msg("Publish Lambda invoked")

	status, payload := a.handler.Publish(ctx, strings.NewReader(body))
	return respond(status, payload), nil
}

func respond(status int, payload interface{}) events.APIGatewayProxyResponse {
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range corsHeaders {
		headers[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Headers: headers}
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(body)}
}
