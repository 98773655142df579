package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chainapsis/oko-tss/internal/ksnode/identity"
)

// NewIdentityCmd creates the identity command group.
func NewIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage node identities",
	}
	cmd.AddCommand(newIdentityGenerateCmd())
	return cmd
}

func newIdentityGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an age-encrypted signing identity for a node",
		RunE:  runIdentityGenerate,
	}

	cmd.Flags().StringP("name", "n", "", "Node name (required)")
	cmd.Flags().StringP("identity-dir", "o", "identity", "Directory to write the identity files to")
	cmd.Flags().StringP("password-file", "f", "", "Read the encryption passphrase from this file instead of prompting")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runIdentityGenerate(cmd *cobra.Command, _ []string) error {
	nodeName, _ := cmd.Flags().GetString("name")
	identityDir, _ := cmd.Flags().GetString("identity-dir")
	passwordFile, _ := cmd.Flags().GetString("password-file")

	passphrase, err := resolvePassphrase(passwordFile)
	if err != nil {
		return err
	}

	pubKey, err := identity.Generate(identityDir, nodeName, passphrase)
	if err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}

	fmt.Printf("Generated identity for node %q\n", nodeName)
	fmt.Printf("Public key: %s\n", pubKey)
	return nil
}

func resolvePassphrase(passwordFile string) (string, error) {
	if passwordFile != "" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		passphrase := strings.TrimSpace(string(data))
		if passphrase == "" {
			return "", fmt.Errorf("password file %s is empty", passwordFile)
		}
		return passphrase, nil
	}

	fmt.Print("Enter passphrase to encrypt the node private key: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}

	fmt.Print("Confirm passphrase: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read passphrase confirmation: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	if len(first) == 0 {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	return string(first), nil
}
