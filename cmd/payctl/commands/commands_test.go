package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/payment-control-plane/services"
)

const defaultPolicy = "../../../policies/default.json"

// execute runs payctl with args and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORAGE", "memory")
	t.Setenv("RETRY_MAX_ATTEMPTS", "1")
	t.Setenv("LOG_LEVEL", "error")

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--policy", defaultPolicy, "--log-level", "error"}, args...))

	err := root.Execute()
	return out.String(), err
}

func decodeOutput(t *testing.T, out string, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

var paymentFlags = []string{
	"--amount", "1",
	"--currency", "USD",
	"--country", "US",
	"--mcc", "5411",
	"--from", "acct-1",
	"--to", "acct-2",
	"--country-risk", "10",
}

func TestAuthorizeCommand(t *testing.T) {
	t.Run("completes the pipeline", func(t *testing.T) {
		out, err := execute(t, "", append([]string{"authorize"}, paymentFlags...)...)
		require.NoError(t, err)

		var outcome map[string]interface{}
		decodeOutput(t, out, &outcome)
		assert.Equal(t, true, outcome["completed"])
		assert.NotEmpty(t, outcome["correlation_id"])
		assert.NotEmpty(t, outcome["decision"])
	})

	t.Run("reads the transaction from stdin", func(t *testing.T) {
		body := `{"correlation_id":"cli-1","amount":"1","currency":"USD","country":"US","mcc":"5411",` +
			`"source_account":"acct-1","destination_account":"acct-2"}`
		out, err := execute(t, body, "authorize", "--file", "-")
		require.NoError(t, err)

		var outcome map[string]interface{}
		decodeOutput(t, out, &outcome)
		assert.Equal(t, "cli-1", outcome["correlation_id"])
	})

	t.Run("invalid amount flag", func(t *testing.T) {
		_, err := execute(t, "", "authorize", "--amount", "ten")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --amount")
	})

	t.Run("invalid transaction prints the stopped outcome", func(t *testing.T) {
		out, err := execute(t, "", "authorize", "--amount", "1", "--currency", "", "--from", "a", "--to", "b")
		require.Error(t, err)

		var outcome map[string]interface{}
		decodeOutput(t, out, &outcome)
		assert.Equal(t, false, outcome["completed"])
		assert.NotEmpty(t, outcome["error"])
	})
}

func TestSettleCommand(t *testing.T) {
	out, err := execute(t, "", append([]string{"settle"}, paymentFlags...)...)
	require.NoError(t, err)

	var resp struct {
		CorrelationID string `json:"correlation_id"`
		Records       []struct {
			Chain  string `json:"chain"`
			Status string `json:"status"`
		} `json:"records"`
	}
	decodeOutput(t, out, &resp)
	assert.NotEmpty(t, resp.CorrelationID)
	require.NotEmpty(t, resp.Records)
	assert.NotEmpty(t, resp.Records[0].Chain)
}

func TestSpeculateCommand(t *testing.T) {
	out, err := execute(t, "", append([]string{"speculate"}, paymentFlags...)...)
	require.NoError(t, err)

	var resp map[string]interface{}
	decodeOutput(t, out, &resp)
	assert.Contains(t, resp, "fusion")
	assert.Contains(t, resp, "speculative")
}

func TestComplianceCommand(t *testing.T) {
	out, err := execute(t, "", append([]string{"compliance"}, paymentFlags...)...)
	require.NoError(t, err)

	var result map[string]interface{}
	decodeOutput(t, out, &result)
	assert.NotEmpty(t, result["status"])
}

func TestReplayCommand(t *testing.T) {
	batch := `[
		{"amount":"1","currency":"USD","country":"US","mcc":"5411","source_account":"a","destination_account":"b"},
		{"amount":"1","currency":"","source_account":"a","destination_account":"b"}
	]`
	out, err := execute(t, batch, "replay")
	require.NoError(t, err)

	var summary ReplaySummary
	decodeOutput(t, out, &summary)
	assert.Equal(t, 1, summary.Authorized)
	assert.Len(t, summary.Rejected, 1)
}

func TestLedgerCommands(t *testing.T) {
	out, err := execute(t, "", "ledger", "accounts")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = execute(t, "", "ledger", "journal", "missing")
	assert.Error(t, err)

	_, err = execute(t, "", "ledger", "account", "missing")
	assert.ErrorIs(t, err, services.ErrAccountNotFound)
}

func TestReportCommands(t *testing.T) {
	for _, name := range []string{"history", "routes"} {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, "", name, "--limit", "5")
			assert.NoError(t, err)
		})
	}

	out, err := execute(t, "", "dead-letters")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestProvidersCommand(t *testing.T) {
	out, err := execute(t, "", "providers")
	require.NoError(t, err)

	var statuses []ProviderStatus
	decodeOutput(t, out, &statuses)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.Equal(t, "UP", string(s.Status), s.Name)
		assert.NotNil(t, s.LatencyMS)
	}
}

func TestPolicyCommands(t *testing.T) {
	t.Run("validate", func(t *testing.T) {
		out, err := execute(t, "", "policy", "validate", defaultPolicy)
		require.NoError(t, err)

		var summary PolicySummary
		decodeOutput(t, out, &summary)
		assert.Equal(t, "default", summary.Name)
		assert.Equal(t, "1", summary.Version)
		assert.NotEmpty(t, summary.Providers)
	})

	t.Run("validate rejects a broken document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"name":""}`), 0o600))

		_, err := execute(t, "", "policy", "validate", path)
		assert.Error(t, err)
	})

	t.Run("import", func(t *testing.T) {
		out, err := execute(t, "", "policy", "import", defaultPolicy)
		require.NoError(t, err)

		var record map[string]interface{}
		decodeOutput(t, out, &record)
		assert.Equal(t, "default", record["name"])
		assert.Equal(t, "1", record["version"])
	})

	t.Run("list is empty in memory", func(t *testing.T) {
		out, err := execute(t, "", "policy", "list")
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, out)
	})
}
