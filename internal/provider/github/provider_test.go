package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/totetech/reviewpilot/internal/model"
)

func testProvider(t *testing.T, secret string) *Provider {
	t.Helper()
	p, err := New(model.ProviderConfig{
		Token:         "test-token",
		WebhookSecret: secret,
		BotUsername:   "reviewpilot-bot",
	})
	require.NoError(t, err)
	return p
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestValidateWebhook(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)

	p := testProvider(t, "s3cret")
	assert.NoError(t, p.ValidateWebhook(payload, sign("s3cret", payload)))
	assert.Error(t, p.ValidateWebhook(payload, sign("wrong", payload)))
	assert.Error(t, p.ValidateWebhook(payload, "not-a-signature"))

	// no secret configured means validation is skipped
	open := testProvider(t, "")
	assert.NoError(t, open.ValidateWebhook(payload, ""))
}

func TestParseWebhookEvent(t *testing.T) {
	payload := []byte(`{
		"action": "synchronize",
		"number": 42,
		"pull_request": {
			"id": 1001,
			"number": 42,
			"title": "Add retry to fetcher",
			"body": "desc",
			"state": "open",
			"changed_files": 3,
			"additions": 40,
			"deletions": 12,
			"head": {"ref": "feature/retry", "sha": "deadbeef"},
			"base": {"ref": "main"},
			"html_url": "https://github.com/acme/widgets/pull/42",
			"user": {"id": 7, "login": "alice"}
		},
		"repository": {"id": 5, "name": "widgets", "full_name": "acme/widgets"},
		"sender": {"id": 7, "login": "alice"}
	}`)

	p := testProvider(t, "")
	event, err := p.ParseWebhookEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "pull_request", event.Type)
	assert.Equal(t, "synchronize", event.Action)
	assert.Equal(t, "acme/widgets", event.ProjectID)
	require.NotNil(t, event.PullRequest)
	assert.Equal(t, 42, event.PullRequest.IID)
	assert.Equal(t, "deadbeef", event.PullRequest.SHA)
	assert.Equal(t, "main", event.PullRequest.TargetBranch)
	assert.Equal(t, "alice", event.User.Username)
}

func TestIsPullRequestEvent(t *testing.T) {
	p := testProvider(t, "")

	event := func(typ, action, user string) *model.CodeEvent {
		return &model.CodeEvent{
			Type:   typ,
			Action: action,
			User:   &model.User{Username: user},
		}
	}

	assert.True(t, p.IsPullRequestEvent(event("pull_request", "opened", "alice")))
	assert.True(t, p.IsPullRequestEvent(event("pull_request", "reopened", "alice")))
	assert.True(t, p.IsPullRequestEvent(event("pull_request", "synchronize", "alice")))
	assert.True(t, p.IsPullRequestEvent(event("pull_request", "edited", "alice")))
	assert.True(t, p.IsPullRequestEvent(event("pull_request", "ready_for_review", "alice")))

	assert.False(t, p.IsPullRequestEvent(event("issue_comment", "created", "alice")))
	assert.False(t, p.IsPullRequestEvent(event("pull_request", "closed", "alice")))
	// events from the bot itself are dropped to avoid loops
	assert.False(t, p.IsPullRequestEvent(event("pull_request", "opened", "reviewpilot-bot")))
}
