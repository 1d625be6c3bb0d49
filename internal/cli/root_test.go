package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "flowguard", cmd.Use)
	assert.Contains(t, cmd.Long, "append-only call log")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "validate", "invoke", "query", "run", "log", "replay", "test", "keys"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestKeysSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"derive", "sign-claim", "sign-execution", "nonce"} {
		subCmd, _, err := cmd.Find([]string{"keys", name})
		require.NoError(t, err)
		assert.Equal(t, name, subCmd.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "flowguard.yaml", configFlag.DefValue)
}

func TestInvokeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	invokeCmd, _, err := cmd.Find([]string{"invoke"})
	require.NoError(t, err)

	argsFlag := invokeCmd.Flags().Lookup("args")
	require.NotNil(t, argsFlag)
	assert.Equal(t, "{}", argsFlag.DefValue)

	asFlag := invokeCmd.Flags().Lookup("as")
	require.NotNil(t, asFlag)
	assert.Equal(t, "", asFlag.DefValue)
}

func TestInitCommandDefaults(t *testing.T) {
	cmd := NewRootCommand()
	initCmd, _, err := cmd.Find([]string{"init"})
	require.NoError(t, err)

	assert.Equal(t, "137", initCmd.Flags().Lookup("chain-id").DefValue)
	assert.Equal(t, "flowguard.db", initCmd.Flags().Lookup("db").DefValue)
	assert.Equal(t, "USDC", initCmd.Flags().Lookup("asset").DefValue)
	assert.Equal(t, "6", initCmd.Flags().Lookup("decimals").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, "", "--format", "xml", "keys", "nonce")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "x")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", assert.AnError)))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.ErrorIs(t, WrapExitError(ExitCommandError, "x", assert.AnError), assert.AnError)
}
