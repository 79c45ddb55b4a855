package cmd

import (
	_ "embed"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gregLibert/cardemu/pkg/emv"
	"github.com/gregLibert/cardemu/pkg/hce"
	"github.com/gregLibert/cardemu/pkg/history"
	"github.com/gregLibert/cardemu/pkg/iso7816"
)

//go:embed sample_card.toml
var sampleCard []byte

// demoResponseTimeout bounds each command sent to the emulated card.
const demoResponseTimeout = 10 * time.Second

// maxRecordsPerFile is the highest record number READ RECORD can address in a file.
const maxRecordsPerFile = 30

var (
	demoPSE        string
	demoTranscript bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Explore the emulated card like a payment terminal would",
	Long: `demo selects the Payment System Environment, reads its directory, selects
every application found and, for the first one, runs GET PROCESSING OPTIONS and
reads the records listed in the AFL. Commands go through the same emulation
service as real readers, in the configured mode.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := newCoordinator(cmd.Context())
		if err != nil {
			return err
		}

		rec := history.NewRecorder(cfg.History, logger)
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn().Err(err).Msg("history close failed")
			}
		}()

		card := hce.NewLoopback(coord, rec, demoResponseTimeout, logger)
		cls, _ := iso7816.NewClass(0x00)
		d := &explorer{
			client: iso7816.NewClient(card),
			cls:    cls,
			out:    cmd.OutOrStdout(),
		}

		d.run(demoPSE)

		card.Service().OnDeactivated(hce.DeactivationLinkLoss)
		if err := card.Close(); err != nil {
			return err
		}
		if demoTranscript {
			d.banner("COMMUNICATION LOG")
			fmt.Fprintln(d.out, rec.Transcript())
		}
		return nil
	},
}

// explorer walks an EMV card from the PSE down to the application records.
type explorer struct {
	client *iso7816.Client
	cls    iso7816.Class
	out    io.Writer
}

func (d *explorer) printf(format string, a ...any) {
	fmt.Fprintf(d.out, format, a...)
}

func (d *explorer) banner(title string) {
	d.printf("\n=============================================\n")
	d.printf(" %s\n", title)
	d.printf("=============================================\n")
}

func (d *explorer) run(pse string) {
	// Step 1: Try to find the Payment System Environment (PSE)
	sfi, err := d.selectPSE(pse)
	if err != nil {
		d.printf("(!) Step 1: %v\n", err)
	}

	// Step 2: If we found a directory (SFI), read it to find Applications (AIDs)
	var candidateAIDs [][]byte
	if sfi > 0 {
		candidateAIDs = d.readDirectory(sfi)
	} else {
		d.printf("\n>> Step 2 Skipped: No Valid SFI found in Step 1.\n")
	}

	// Step 3: Select every application found
	fcis := d.selectCandidates(candidateAIDs)

	// Step 4: Initiate processing on the first application that answered
	for _, fci := range fcis {
		if fci != nil {
			d.processApplication(fci)
			break
		}
	}

	d.printf("\n>> Demo Finished Successfully\n")
}

// selectPSE selects the PSE and extracts the SFI of its directory.
func (d *explorer) selectPSE(pse string) (byte, error) {
	d.banner(fmt.Sprintf("Step 1: SELECT PSE (%s)", pse))

	trace, err := d.client.Send(iso7816.SelectByAID(d.cls, []byte(pse)))
	if err != nil {
		return 0, fmt.Errorf("transmission failed: %w", err)
	}
	d.printTrace(trace)

	if !trace.IsSuccess() {
		return 0, fmt.Errorf("PSE selection failed with status: %s", trace.Status().Verbose())
	}

	fci, err := emv.ParseFCI(trace.Last().Response.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to parse PSE FCI: %w", err)
	}
	d.printf("%s\n", fci.Describe())

	sfi, _ := fci.DirectorySFI()
	return sfi, nil
}

// readDirectory reads records of the directory SFI until 'Record Not Found'.
func (d *explorer) readDirectory(sfi byte) [][]byte {
	d.banner(fmt.Sprintf("Step 2: EXPLORING DIRECTORY (SFI %d)", sfi))

	var collectedAIDs [][]byte
	for recNum := byte(1); recNum <= maxRecordsPerFile; recNum++ {
		d.printf("\n[Record #%d] Querying target SFI %d...\n", recNum, sfi)

		trace, err := d.client.Send(iso7816.ReadRecord(d.cls, sfi, recNum))
		if err != nil {
			d.printf("(!) Communication broken: %v\n", err)
			break
		}
		if trace.Status() == iso7816.SW_ERR_RECORD_NOT_FOUND {
			d.printf(">> Status 6A83 received: End of Directory reached.\n")
			break
		}
		d.printTrace(trace)
		if !trace.IsSuccess() {
			continue
		}

		rawData := trace.Last().Response.Data
		d.printf("   -> Found record entry (%d bytes). Parsing EMV content...\n", len(rawData))

		record, err := emv.ParseDirectoryRecord(rawData)
		if err != nil {
			d.printf("   (!) Failed to parse EMV Directory Record: %v\n", err)
			continue
		}
		d.printf("%s\n", record.Describe())

		for _, app := range record.Candidates() {
			d.printf("      [+] Adding Candidate AID: %X (%s)\n", app.AID, app.ApplicationLabel)
			collectedAIDs = append(collectedAIDs, app.AID)
		}
	}
	return collectedAIDs
}

// selectCandidates selects each AID in turn. The result holds the parsed FCI
// of every application, nil where the selection failed.
func (d *explorer) selectCandidates(aids [][]byte) []*emv.FCI {
	d.banner(fmt.Sprintf("Step 3: SELECTING CANDIDATE APPLICATIONS (%d found)", len(aids)))

	if len(aids) == 0 {
		d.printf(">> No Applications found to select.\n")
		return nil
	}

	fcis := make([]*emv.FCI, len(aids))
	for i, aid := range aids {
		d.printf("\n------------------------------------------------------------\n")
		d.printf(" [App %d/%d] Selecting AID: %X\n", i+1, len(aids), aid)
		d.printf("------------------------------------------------------------\n")

		trace, err := d.client.Send(iso7816.SelectByAID(d.cls, aid))
		if err != nil {
			d.printf("(!) Transmission failed for AID %X: %v\n", aid, err)
			continue
		}
		if !trace.IsSuccess() {
			d.printf("Selection Failed: %s\n", trace.Status().Verbose())
			continue
		}

		fci, err := emv.ParseFCI(trace.Last().Response.Data)
		if err != nil {
			d.printTrace(trace)
			continue
		}
		d.printf("%s\n", fci.Describe())
		fcis[i] = fci
	}
	return fcis
}

// processApplication sends GET PROCESSING OPTIONS with zeroed PDOL data and
// reads every record the AFL points to. The application must be the current one.
func (d *explorer) processApplication(fci *emv.FCI) {
	d.banner("Step 4: GET PROCESSING OPTIONS")

	// Re-select: the last SELECT of step 3 may have targeted another application.
	trace, err := d.client.Send(iso7816.SelectByAID(d.cls, fci.DFName))
	if err != nil || !trace.IsSuccess() {
		d.printf("(!) Could not re-select %X\n", fci.DFName)
		return
	}

	pdol, err := fci.ProcessingDOL()
	if err != nil {
		d.printf("(!) Invalid PDOL: %v\n", err)
		return
	}
	d.printf("   Answering the PDOL with %d zero bytes\n", emv.DOLLength(pdol))

	trace, err = d.client.Send(iso7816.GetProcessingOptions(make([]byte, emv.DOLLength(pdol))))
	if err != nil {
		d.printf("(!) Transmission failed: %v\n", err)
		return
	}
	d.printTrace(trace)
	if !trace.IsSuccess() {
		return
	}

	gpo, err := emv.ParseProcessingOptions(trace.Last().Response.Data)
	if err != nil {
		d.printf("(!) Failed to parse processing options: %v\n", err)
		return
	}
	d.printf("%s\n", gpo.Describe())

	afl, err := gpo.Locators()
	if err != nil {
		d.printf("(!) Invalid AFL: %v\n", err)
		return
	}

	d.banner(fmt.Sprintf("Step 5: READING APPLICATION DATA (%d file ranges)", len(afl)))
	for _, loc := range afl {
		for recNum := int(loc.FirstRecord); recNum <= int(loc.LastRecord); recNum++ {
			d.printf("\n[SFI %d Record #%d]\n", loc.SFI, recNum)
			readCmd := iso7816.ReadRecord(d.cls, loc.SFI, byte(recNum))
			trace, err := d.client.Send(readCmd)
			if err != nil {
				d.printf("(!) Communication broken: %v\n", err)
				return
			}
			d.printTrace(trace)

			raw, err := readCmd.Bytes()
			if err != nil || !trace.IsSuccess() {
				continue
			}
			if summary, ok := emv.Annotate(raw, trace.Last().Response.Bytes()); ok {
				d.printf("%s\n", summary)
			}
		}
	}
}

func (d *explorer) printTrace(trace iso7816.Trace) {
	for _, tx := range trace {
		d.printf("   > %s\n", tx.Command)
		d.printf("   < %s\n", tx.Response)
	}
}

func init() {
	demoCmd.Flags().StringVar(&demoPSE, "pse", "1PAY.SYS.DDF01", "name of the Payment System Environment to select")
	demoCmd.Flags().BoolVar(&demoTranscript, "transcript", false, "print the communication log at the end")
	rootCmd.AddCommand(demoCmd)
}
