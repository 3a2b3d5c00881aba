// Package credentials abstracts where a connection's username/password come from: a static
// pair baked into Config, or fetched on demand from AWS Secrets Manager. This is a supplement
// to the distilled spec's plain AuthUsername/AuthPassword fields.
package credentials

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"

	"github.com/tacheron/imapc/imaperr"
)

// Provider resolves the username/password pair to authenticate a connection with.
type Provider interface {
	Resolve() (username, password string, err *imaperr.Error)
}

// Static returns a fixed username/password pair, the default Provider backing
// Config.AuthUsername/AuthPassword.
type Static struct {
	Username string
	Password string
}

// Resolve implements Provider.
func (s Static) Resolve() (string, string, *imaperr.Error) {
	return s.Username, s.Password, nil
}

// secretPayload is the expected JSON shape of a Secrets Manager secret value: a small object
// with "username" and "password" keys, matching how AWS's own RDS/Secrets Manager rotation
// templates shape database credential secrets.
type secretPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SecretsManagerProvider fetches the username/password pair from AWS Secrets Manager by secret
// ID, caching the result after the first successful Resolve.
type SecretsManagerProvider struct {
	SecretID string
	Region   string

	cached   bool
	username string
	password string
}

// Resolve implements Provider, fetching and caching the secret on first call.
func (p *SecretsManagerProvider) Resolve() (string, string, *imaperr.Error) {
	if p.cached {
		return p.username, p.password, nil
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(p.Region)})
	if err != nil {
		return "", "", imaperr.New(imaperr.CannotConnect, "SecretsManagerProvider.Resolve", "failed to create AWS session", err)
	}
	svc := secretsmanager.New(sess)
	out, err := svc.GetSecretValue(&secretsmanager.GetSecretValueInput{SecretId: aws.String(p.SecretID)})
	if err != nil {
		return "", "", imaperr.New(imaperr.CannotConnect, "SecretsManagerProvider.Resolve", "failed to fetch secret "+p.SecretID, err)
	}
	if out.SecretString == nil {
		return "", "", imaperr.New(imaperr.CannotConnect, "SecretsManagerProvider.Resolve", "secret "+p.SecretID+" has no string value", nil)
	}
	var payload secretPayload
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return "", "", imaperr.New(imaperr.CannotConnect, "SecretsManagerProvider.Resolve", "secret "+p.SecretID+" is not valid JSON", err)
	}
	p.username, p.password, p.cached = payload.Username, payload.Password, true
	return p.username, p.password, nil
}
