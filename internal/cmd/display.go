package cmd

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/coolone/sitesync/internal/images"
	"github.com/coolone/sitesync/internal/page"
	"github.com/coolone/sitesync/internal/stage"
	"github.com/coolone/sitesync/internal/sync"
)

// progressStep is the fraction between two progress log lines.
const progressStep = 0.25

// displayCatalog prints the pages of each listed content type.
//
//nolint:forbidigo // CLI user output function
func displayCatalog(listings []sync.Listing) {
	for _, listing := range listings {
		fmt.Printf("%s\n", listing.Type.DisplayName())
		if listing.Err != nil {
			fmt.Printf("  (error: %v)\n", listing.Err)
			continue
		}

		names := listing.Names()
		if len(names) == 0 {
			fmt.Printf("  (no pages)\n")
			continue
		}
		for _, name := range names {
			fmt.Printf("  - %s\n", name)
		}
	}
}

// displayEdit prints the metadata, title and images of a page.
//
//nolint:forbidigo // CLI user output function
func displayEdit(e *sync.Edit) error {
	fmt.Printf("Page: %s/%s\n", e.Type, e.Name)
	if e.Page.Title != "" {
		fmt.Printf("Title: %s\n", e.Page.Title)
	}
	if e.Item != nil {
		fmt.Printf("Path: %s\n", e.Item.Path)
		fmt.Printf("SHA: %s\n", e.Item.SHA)
		fmt.Printf("Size: %s\n", humanize.Bytes(e.Item.Size))
	}

	doc, err := page.Serialize(e.Page)
	if err != nil {
		return fmt.Errorf("serialize page: %w", err)
	}
	header, _, _ := strings.Cut(strings.TrimPrefix(doc, "---\n"), "\n---")
	fmt.Printf("\nFront matter:\n")
	for line := range strings.SplitSeq(header, "\n") {
		fmt.Printf("  %s\n", line)
	}

	fmt.Printf("\nImages:\n")
	displaySlot(page.SlotLogo, e.Logo.Value)
	displaySlot(page.SlotSingleImage, e.SingleImage.Value)

	keys := make([]string, 0, len(e.Attachments.Value))
	for key := range e.Attachments.Value {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		a := e.Attachments.Value[key]
		displaySlot(key, &a)
	}

	return nil
}

//nolint:forbidigo // CLI user output function
func displaySlot(name string, a *images.Attachment) {
	switch {
	case a == nil:
		fmt.Printf("  %-14s (none)\n", name)
	case a.IsLocal():
		fmt.Printf("  %-14s pending upload\n", name)
	default:
		fmt.Printf("  %-14s %s\n", name, a.Path)
	}
}

// displayResult prints the outcome of every operation of a sync.
//
//nolint:forbidigo // CLI user output function
func displayResult(r *sync.Result) {
	for _, op := range r.Succeeded {
		fmt.Printf("  ok    %s\n", op)
	}
	for _, s := range r.Skipped {
		fmt.Printf("  skip  %s: %v\n", s.Operation, s.Reason)
	}
	for _, f := range r.Failed {
		fmt.Printf("  FAIL  %s: %v\n", f.Operation, f.Err)
	}
	fmt.Printf("\n%d succeeded, %d skipped, %d failed\n", len(r.Succeeded), len(r.Skipped), len(r.Failed))
}

// displayStaged prints where the staged page was written.
//
//nolint:forbidigo // CLI user output function
func displayStaged(dir, target string) {
	fmt.Printf("Staging directory: %s\n", dir)
	fmt.Printf("Page written to: %s\n", target)
}

// newProgressLogger logs staging progress every quarter of each step.
func newProgressLogger() stage.ProgressFunc {
	next := map[string]float64{}
	return func(step string, fraction float64) {
		if fraction < next[step] {
			return
		}
		slog.Info("staging", "step", step, "progress", fmt.Sprintf("%.0f%%", fraction*100)) //nolint:mnd // percent
		next[step] = fraction + progressStep
	}
}
