package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"taskflow/cmd/internal/app"
	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/security/token"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print fresh signing keys as environment lines",
	Long: `Generates the PASETO v4 key pair, the refresh signing secret and a token
hashing key. The output can be appended to a .env file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := session.GenerateKeys()
		if err != nil {
			return err
		}
		hmacKey := make([]byte, token.MinHMACKeyBytes)
		if _, err := rand.Read(hmacKey); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%sPASETO_V4_SECRET_KEY_HEX=%s\n", app.EnvPrefix, keys.PasetoV4SecretKeyHex)
		fmt.Fprintf(out, "# public key: %s\n", keys.PasetoV4PublicKeyHex)
		fmt.Fprintf(out, "%sAUTH_REFRESH_SECRET=%s\n", app.EnvPrefix, keys.RefreshSecret)
		fmt.Fprintf(out, "%sTOKEN_HMAC_KEY=%s\n", app.EnvPrefix, hex.EncodeToString(hmacKey))
		return nil
	},
}
