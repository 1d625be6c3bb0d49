package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin = "0x00000000000000000000000000000000000000aa"
	testAlice = "0x00000000000000000000000000000000000000a1"
	testBob   = "0x00000000000000000000000000000000000000a2"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// initDeployment writes a config with a database in a temp dir and
// returns the config path.
func initDeployment(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "flowguard.yaml")
	_, err := runCLI(t, "", "init",
		"--config", cfgPath,
		"--admin", testAdmin,
		"--db", filepath.Join(dir, "ledger.db"),
		"--genesis", "1700000000",
	)
	require.NoError(t, err)
	return cfgPath
}

// runCLI executes the root command with args and stdin, returning
// everything written to stdout and stderr.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	// PersistentPreRunE installs a stderr logger; keep test output quiet.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return out.String(), err
}

func mintArgs(to, amount string) string {
	return `{"to":"` + to + `","amount":"` + amount + `"}`
}
