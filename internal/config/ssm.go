package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/models"
)

// ParameterGetter is the subset of the SSM client used to read secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSSMCredentials reads <prefix>/<platform>/email and <prefix>/<platform>/password
// from Parameter Store. Credentials already present in base win over SSM values.
func LoadSSMCredentials(ctx context.Context, client ParameterGetter, prefix string, platforms []models.Platform, base CredentialStore) (CredentialStore, error) {
	prefix = strings.TrimSuffix(prefix, "/")

	var creds []Credential
	for _, p := range platforms {
		if c, ok := base.Get(p); ok && c.Login != "" && c.Secret != "" {
			creds = append(creds, c)
			continue
		}

		login, err := getParameter(ctx, client, fmt.Sprintf("%s/%s/email", prefix, p), false)
		if err != nil {
			return CredentialStore{}, err
		}
		secret, err := getParameter(ctx, client, fmt.Sprintf("%s/%s/password", prefix, p), true)
		if err != nil {
			return CredentialStore{}, err
		}

		creds = append(creds, Credential{Platform: p, Login: login, Secret: secret})
		log.Info().Str("platform", string(p)).Msg("Credentials loaded from SSM Parameter Store")
	}

	return NewCredentialStore(creds...), nil
}

func getParameter(ctx context.Context, client ParameterGetter, name string, decrypt bool) (string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return *out.Parameter.Value, nil
}
