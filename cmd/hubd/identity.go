package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "identity"}
	cmd.AddCommand(identityCreateCmd())
	return cmd
}

func identityCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "generate an ed25519 signer keypair for delegated signing",
		Run: func(cmd *cobra.Command, args []string) {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				fmt.Fprintln(os.Stderr, "identity create:", err)
				os.Exit(1)
			}
			fmt.Printf("signer_public_key: %s\n", hex.EncodeToString(pub))
			fmt.Printf("signer_private_key: %s\n", hex.EncodeToString(priv))
			fmt.Println("submit this public key as a SignerEvent (Op=Add) for your fid before signing messages with it")
		},
	}
}
