package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gregLibert/cardemu/pkg/dispatch"
	"github.com/gregLibert/cardemu/pkg/hce"
	"github.com/gregLibert/cardemu/pkg/history"
	"github.com/gregLibert/cardemu/pkg/iso7816"
)

var runTranscript bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer hex command APDUs read line by line from stdin",
	Long: `Each input line is one command APDU in hex. Responses are printed in order.
Lines starting with '#' are ignored. Directives:

  :deactivate         signal link loss (ends the session)
  :deselect           signal deselection (ends the session)
  :mode local|relay   switch the response source
  :label              print the label of the last answered command`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		coord, err := newCoordinator(ctx)
		if err != nil {
			return err
		}

		rec := history.NewRecorder(cfg.History, logger)
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn().Err(err).Msg("history close failed")
			}
		}()

		var outMu sync.Mutex
		printResponse := func(resp []byte) {
			outMu.Lock()
			defer outMu.Unlock()
			if resp == nil {
				fmt.Fprintln(out, "(no response)")
				return
			}
			fmt.Fprintln(out, iso7816.EncodeHex(resp))
		}

		svc := hce.NewService(coord, hce.HostFunc(printResponse), rec, logger)

		scanErr := readCommands(cmd.InOrStdin(), func(line string) error {
			if strings.HasPrefix(line, ":") {
				return runDirective(cmd, svc, coord, line)
			}
			if resp := svc.ProcessHex(line); resp != nil {
				printResponse(resp)
			}
			svc.Flush()
			return nil
		})

		closeErr := svc.Close()
		if runTranscript {
			fmt.Fprintln(out, rec.Transcript())
		}
		return errors.Join(scanErr, closeErr)
	},
}

// readCommands calls fn for every non-empty, non-comment line of r.
func readCommands(r io.Reader, fn func(line string) error) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func runDirective(cmd *cobra.Command, svc *hce.Service, coord *dispatch.Coordinator, line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return fmt.Errorf("empty directive")
	}

	switch fields[0] {
	case "deactivate":
		svc.OnDeactivated(hce.DeactivationLinkLoss)
	case "deselect":
		svc.OnDeactivated(hce.DeactivationDeselected)
	case "mode":
		if len(fields) != 2 {
			return fmt.Errorf("usage: :mode local|relay")
		}
		mode, err := dispatch.ParseMode(fields[1])
		if err != nil {
			return err
		}
		svc.Flush()
		coord.SetMode(cmd.Context(), mode)
		return coord.Wait()
	case "label":
		svc.Flush()
		fmt.Fprintln(cmd.OutOrStdout(), coord.SelectedLabel())
	default:
		return fmt.Errorf("unknown directive %q", line)
	}
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runTranscript, "transcript", false, "print the communication log when input ends")
	rootCmd.AddCommand(runCmd)
}
