package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jpfielding/png.go/pkg/png"
	"github.com/jpfielding/png.go/pkg/png/chunk"
	"github.com/jpfielding/png.go/pkg/util"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze cobra command
func NewAnalyzeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze PNG chunk structure",
		Long:  "Lists every chunk of a PNG stream with its class and how the decoder handled it, then the recoverable problems and a digest of the pixels.",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("file")
			if uri == "" && len(args) > 0 {
				uri = args[0]
			}
			if uri == "" {
				return fmt.Errorf("file path is required. Use --file flag or provide as argument")
			}
			opts, err := decodeOptions(cmd)
			if err != nil {
				return err
			}
			in, err := openURI(ctx, uri, false)
			if err != nil {
				return err
			}
			defer in.Close()
			return runAnalyze(cmd.OutOrStdout(), in, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("file", "f", "", "PNG file path to analyze")
	return cmd
}

func chunkClass(t chunk.Type) string {
	class := "ancillary"
	if t.Critical() {
		class = "critical"
	}
	if !t.Public() {
		class += ",private"
	}
	if t.SafeToCopy() {
		class += ",safe"
	}
	return class
}

// runAnalyze walks the stream chunk by chunk.
func runAnalyze(w io.Writer, in io.Reader, opts *png.Options) error {
	// digest the rows as stored, pass by pass
	opts.RawPasses = true
	d := png.NewDecoder(in, opts)
	defer d.Close()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tLENGTH\tCLASS\tRESULT\tMODE")
	d.OnChunk = func(h chunk.Header, handled png.Handled, mode png.Mode) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", h.Type, h.Length, chunkClass(h.Type), handled, mode)
	}

	info, err := d.ReadInfo()
	if err != nil {
		tw.Flush()
		return err
	}
	digest := util.NewRowDigest()
	err = d.ReadRows(digest.Row)
	if err == nil {
		err = d.ReadEnd()
	}
	tw.Flush()
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Session: %s\n", d.ID())
	fmt.Fprintf(w, "Image: %dx%d %s depth %d interlaced %v\n", info.Width, info.Height, info.ColorType, info.BitDepth, info.Interlaced())
	fmt.Fprintf(w, "Pixels: %d bytes md5 %s\n", digest.Len(), digest.Hex())
	if id, err := util.ContentUUID(info); err == nil {
		fmt.Fprintf(w, "Content: %s\n", id)
	}
	warnings := d.Warnings()
	fmt.Fprintf(w, "Warnings: %d\n", len(warnings))
	for _, diag := range warnings {
		fmt.Fprintf(w, "  %s\n", diag)
	}
	return nil
}
