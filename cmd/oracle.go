package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ebfe/scard"
	"github.com/spf13/cobra"

	"github.com/gregLibert/cardemu/pkg/config"
	"github.com/gregLibert/cardemu/pkg/oracle"
	"github.com/gregLibert/cardemu/pkg/resolver"
)

var (
	oracleListen string
	oracleReader string
)

var oracleCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Serve relayed command APDUs from a PC/SC card or a definition table",
	Long: `oracle is the far end of relay mode. It accepts TCP connections speaking the
one-byte length framing and answers each command from the card in a PC/SC
reader (--reader) or, without a reader, from the definition table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := cfg.OracleListen
		if oracleListen != "" {
			addr = oracleListen
		}

		var responder oracle.Responder
		if oracleReader != "" {
			card, release, err := connectToCard(oracleReader)
			if err != nil {
				return err
			}
			defer release()
			responder = oracle.NewCardResponder(card)
		} else {
			table, err := loadTable()
			if err != nil {
				return err
			}
			responder = oracle.TableResponder{Resolver: resolver.New(table)}
		}

		srv := &oracle.Server{Responder: responder, Log: logger}
		return srv.ListenAndServe(ctx, addr)
	},
}

// connectToCard handles the PC/SC context establishment and reader connection.
// reader "auto" picks the first reader; any other value is matched as a
// substring of the reader name. The returned func releases both handles.
func connectToCard(reader string) (*scard.Card, func(), error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nil, fmt.Errorf("establishing context: %w", err)
	}
	releaseContext := func() {
		if err := ctx.Release(); err != nil {
			logger.Warn().Err(err).Msg("failed to release context")
		}
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		releaseContext()
		return nil, nil, fmt.Errorf("no smart card reader found")
	}

	name := readers[0]
	if reader != "auto" {
		name = ""
		for _, r := range readers {
			if strings.Contains(r, reader) {
				name = r
				break
			}
		}
		if name == "" {
			releaseContext()
			return nil, nil, fmt.Errorf("no reader matching %q among %q", reader, readers)
		}
	}
	logger.Info().Str("reader", name).Msg("using reader")

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		releaseContext()
		return nil, nil, fmt.Errorf("connecting to card: %w", err)
	}

	return card, func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			logger.Warn().Err(err).Msg("failed to disconnect card")
		}
		releaseContext()
	}, nil
}

func init() {
	oracleCmd.Flags().StringVar(&oracleListen, "listen", "", fmt.Sprintf("address to listen on (default %q)", config.DefaultOracleListen))
	oracleCmd.Flags().StringVar(&oracleReader, "reader", "", "PC/SC reader to relay to, \"auto\" for the first one (default is the definition table)")
	rootCmd.AddCommand(oracleCmd)
}
