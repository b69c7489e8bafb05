package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/martinemde/alita/internal/secrets"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage provider API keys stored in the system keyring",
	}

	keyCmd.AddCommand(&cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key read from the terminal or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readKey(cmd.InOrStdin(), cmd.ErrOrStderr(), args[0])
			if err != nil {
				return err
			}
			if err := secrets.SetAPIKey(args[0], key); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", secrets.KeyName(args[0]))
			return err
		},
	})

	keyCmd.AddCommand(&cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secrets.DeleteAPIKey(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", secrets.KeyName(args[0]))
			return err
		},
	})

	return keyCmd
}

// readKey prompts without echo when stdin is a terminal and otherwise reads
// the first line of in.
func readKey(in io.Reader, prompt io.Writer, provider string) (string, error) {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		fmt.Fprintf(prompt, "%s: ", secrets.KeyName(provider))
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", errors.Wrap(err, "reading key")
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "reading key")
	}
	return line, nil
}
