package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/jobs"
)

// LedgerCLI runs ledger maintenance in the foreground.
type LedgerCLI struct {
	verifier jobs.LedgerVerifier
	sweeper  jobs.ExpirySweeper
}

// NewLedgerCLI constructs the helper.
func NewLedgerCLI(verifier jobs.LedgerVerifier, sweeper jobs.ExpirySweeper) *LedgerCLI {
	return &LedgerCLI{verifier: verifier, sweeper: sweeper}
}

// VerifyOptions defines available flags for the ledger verify command.
type VerifyOptions struct {
	ProductID  int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifySummary is the JSON body of ledger verify.
type VerifySummary struct {
	OK       bool            `json:"ok"`
	Products []ProductReport `json:"products"`
}

// ProductReport is one product's replay result.
type ProductReport struct {
	ProductID  int64                       `json:"product_id"`
	Movements  int                         `json:"movements"`
	Aggregate  int64                       `json:"aggregate"`
	Replayed   int64                       `json:"replayed"`
	Violations []inventory.LedgerViolation `json:"violations"`
}

// VerifyCommand replays one product, or every product when ProductID is zero. It exits
// with 10 when any ledger disagrees.
func (c *LedgerCLI) VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	if opts.ProductID < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger verify: --product must be positive")
		return 1
	}
	var (
		reports []inventory.LedgerReport
		err     error
	)
	if opts.ProductID > 0 {
		var report inventory.LedgerReport
		report, err = c.verifier.VerifyLedger(ctx, opts.ProductID)
		reports = append(reports, report)
	} else {
		reports, err = c.verifier.VerifyAll(ctx)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: %v\n", err)
		return 1
	}

	summary := VerifySummary{OK: true, Products: make([]ProductReport, 0, len(reports))}
	for _, r := range reports {
		violations := r.Violations
		if violations == nil {
			violations = []inventory.LedgerViolation{}
		}
		summary.OK = summary.OK && r.OK()
		summary.Products = append(summary.Products, ProductReport{
			ProductID:  r.ProductID,
			Movements:  r.Movements,
			Aggregate:  r.Aggregate,
			Replayed:   r.Replayed,
			Violations: violations,
		})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func renderVerifyHuman(out io.Writer, summary VerifySummary) {
	failing := 0
	for _, p := range summary.Products {
		if len(p.Violations) == 0 {
			continue
		}
		failing++
		_, _ = fmt.Fprintf(out, "product %d: %d movement(s), aggregate %d, replayed %d\n", p.ProductID, p.Movements, p.Aggregate, p.Replayed)
		for _, v := range p.Violations {
			if v.MovementID > 0 {
				_, _ = fmt.Fprintf(out, " - movement %d: %s (expected %d, found %d)\n", v.MovementID, v.Reason, v.Expected, v.Actual)
				continue
			}
			_, _ = fmt.Fprintf(out, " - %s (expected %d, found %d)\n", v.Reason, v.Expected, v.Actual)
		}
	}
	if failing == 0 {
		_, _ = fmt.Fprintf(out, "%d ledger(s) replay cleanly.\n", len(summary.Products))
		return
	}
	_, _ = fmt.Fprintf(out, "%d of %d ledger(s) disagree.\n", failing, len(summary.Products))
}

// ExpireOptions defines available flags for the ledger expire command.
type ExpireOptions struct {
	AsOf   time.Time
	Stdout io.Writer
	Stderr io.Writer
}

// ExpireCommand runs the batch expiry sweep in the foreground.
func (c *LedgerCLI) ExpireCommand(ctx context.Context, opts ExpireOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	summary, err := c.sweeper.ExpireBatches(ctx, asOf.UTC())
	_, _ = fmt.Fprintf(opts.Stdout, "expired %d batch(es) of %d product(s), %d unit(s) written off, %d alert(s) raised\n",
		summary.Batches, summary.Products, summary.Quantity, summary.Alerts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger expire: %v\n", err)
		return 1
	}
	return 0
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
