package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_ResolveReturnsFixedPair(t *testing.T) {
	s := Static{Username: "alice", Password: "hunter2"}
	user, pass, err := s.Resolve()
	require.Nil(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "hunter2", pass)
}

func TestSecretsManagerProvider_MissingRegionFailsSession(t *testing.T) {
	p := &SecretsManagerProvider{SecretID: "prod/imap/creds"}
	_, _, err := p.Resolve()
	require.NotNil(t, err)
	assert.Equal(t, "CannotConnect", err.Kind.String())
}

func TestSecretsManagerProvider_CachesAfterSuccess(t *testing.T) {
	p := &SecretsManagerProvider{SecretID: "prod/imap/creds", Region: "us-east-1"}
	p.cached = true
	p.username, p.password = "cached-user", "cached-pass"

	user, pass, err := p.Resolve()
	require.Nil(t, err)
	assert.Equal(t, "cached-user", user)
	assert.Equal(t, "cached-pass", pass)
}
