package cli

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/config"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/sig"
	"github.com/roach88/flowguard/internal/types"
)

// SecretEnv names the environment variable read when --secret is unset.
const SecretEnv = "FLOWGUARD_KEY_SECRET"

// KeysOptions holds flags shared by the keys subcommands.
type KeysOptions struct {
	*RootOptions
	Secret  string
	ChainID uint64
}

// KeyView is the printable form of a derived key.
type KeyView struct {
	Label     string `json:"label"`
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
}

// SignatureView is the printable form of a signed message.
type SignatureView struct {
	Signer    string `json:"signer"`
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
}

// NewKeysCommand creates the keys command and its subcommands.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeysOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Derive development keys and sign ledger messages",
		Long: `Derive Ed25519 keys from a secret and a label, and produce the
signatures stealth claims and agent executions require.

The secret is read from --secret or $` + SecretEnv + `. The same secret and
label always give the same key.`,
	}

	cmd.PersistentFlags().StringVar(&opts.Secret, "secret", "", "key derivation secret (default $"+SecretEnv+")")
	cmd.PersistentFlags().Uint64Var(&opts.ChainID, "chain-id", config.Default().ChainID, "chain id bound into signed messages")

	cmd.AddCommand(newKeysDeriveCommand(opts))
	cmd.AddCommand(newKeysSignClaimCommand(opts))
	cmd.AddCommand(newKeysSignExecutionCommand(opts))
	cmd.AddCommand(newKeysNonceCommand(opts))

	return cmd
}

func newKeysDeriveCommand(opts *KeysOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "derive <label>",
		Short: "Print the address of a derived key",
		Example: `  flowguard keys derive agent-1 --secret dev
  FLOWGUARD_KEY_SECRET=dev flowguard keys derive claimer --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := opts.deriveKey(args[0])
			if err != nil {
				return err
			}
			view := KeyView{
				Label:     args[0],
				Address:   key.Address().String(),
				PublicKey: string(canon.Bytes(key.PublicKey())),
			}
			formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return formatter.Success(view)
			}
			fmt.Fprintf(formatter.Writer, "%s\n", view.Address)
			formatter.VerboseLog("public key %s", view.PublicKey)
			return nil
		},
	}
}

func newKeysSignClaimCommand(opts *KeysOptions) *cobra.Command {
	var paymentID, recipient string

	cmd := &cobra.Command{
		Use:   "sign-claim <label>",
		Short: "Sign a stealth payment claim",
		Long: `Sign the claim message for a stealth payment. Any valid signature
authorizes the claim, so the signing key need not be the recipient's.`,
		Example:       `  flowguard keys sign-claim claimer --payment-id 0x... --recipient 0x...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHashFlag("payment-id", paymentID)
			if err != nil {
				return err
			}
			to, err := parseAddressFlag("recipient", recipient)
			if err != nil {
				return err
			}
			digest := canon.ClaimMessage(id, to, opts.ChainID)
			return opts.sign(cmd, args[0], digest)
		},
	}

	cmd.Flags().StringVar(&paymentID, "payment-id", "", "stealth payment id (required)")
	cmd.Flags().StringVar(&recipient, "recipient", "", "address that receives the funds (required)")
	_ = cmd.MarkFlagRequired("payment-id")
	_ = cmd.MarkFlagRequired("recipient")

	return cmd
}

func newKeysSignExecutionCommand(opts *KeysOptions) *cobra.Command {
	var payrollID, nonce string

	cmd := &cobra.Command{
		Use:   "sign-execution <label>",
		Short: "Sign a scheduled payroll execution",
		Long: `Sign the execution message for a scheduled payroll. The signing key
must belong to the agent that submits the execution.`,
		Example:       `  flowguard keys sign-execution agent-1 --payroll-id 0x... --nonce 0x...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHashFlag("payroll-id", payrollID)
			if err != nil {
				return err
			}
			n, err := parseHashFlag("nonce", nonce)
			if err != nil {
				return err
			}
			digest := canon.ExecutionMessage(id, n, opts.ChainID, protocol.SchedulerAddress)
			return opts.sign(cmd, args[0], digest)
		},
	}

	cmd.Flags().StringVar(&payrollID, "payroll-id", "", "scheduled payroll id (required)")
	cmd.Flags().StringVar(&nonce, "nonce", "", "32-byte execution nonce (required)")
	_ = cmd.MarkFlagRequired("payroll-id")
	_ = cmd.MarkFlagRequired("nonce")

	return cmd
}

func newKeysNonceCommand(opts *KeysOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "nonce",
		Short:         "Print a random 32-byte execution nonce",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var n types.Hash
			if _, err := rand.Read(n[:]); err != nil {
				return WrapExitError(ExitCommandError, "failed to read randomness", err)
			}
			formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.Format == "json" {
				return formatter.Success(map[string]string{"nonce": n.String()})
			}
			fmt.Fprintln(formatter.Writer, n.String())
			return nil
		},
	}
}

func (o *KeysOptions) deriveKey(label string) (*sig.Key, error) {
	secret := o.Secret
	if secret == "" {
		secret = os.Getenv(SecretEnv)
	}
	if secret == "" {
		return nil, NewExitError(ExitCommandError, "no secret: set --secret or $"+SecretEnv)
	}
	key, err := sig.DeriveKey([]byte(secret), label)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to derive key", err)
	}
	return key, nil
}

func (o *KeysOptions) sign(cmd *cobra.Command, label string, digest types.Hash) error {
	key, err := o.deriveKey(label)
	if err != nil {
		return err
	}
	view := SignatureView{
		Signer:    key.Address().String(),
		Digest:    digest.String(),
		Signature: string(canon.Bytes(key.Sign(digest))),
	}

	formatter := newFormatter(o.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if o.Format == "json" {
		return formatter.Success(view)
	}
	fmt.Fprintln(formatter.Writer, view.Signature)
	formatter.VerboseLog("signer %s digest %s", view.Signer, view.Digest)
	return nil
}

func parseHashFlag(flag, value string) (types.Hash, error) {
	h, err := types.ParseHash(value)
	if err != nil {
		return types.Hash{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s", flag), err)
	}
	return h, nil
}
