package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	stdpng "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jpfielding/png.go/pkg/png"
	"github.com/spf13/cobra"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "PNG decode",
		Long:  "decode a PNG stream, print its metadata and optionally export the pixels",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			if uri == "" && len(args) > 0 {
				uri = args[0]
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			opts, err := decodeOptions(cmd)
			if err != nil {
				return err
			}
			in, err := openURI(ctx, uri, verbose)
			if err != nil {
				return err
			}
			defer in.Close()

			img, err := png.Decode(in, opts)
			if err != nil {
				return fmt.Errorf("decode %s: %w", uri, err)
			}
			format, _ := cmd.Flags().GetString("format")
			if err := printImage(cmd.OutOrStdout(), img, format); err != nil {
				return err
			}
			if out, _ := cmd.Flags().GetString("out"); out != "" {
				return export(img, out)
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "PNG URI: a path, - for stdin, or http(s)")
	pf.StringP("format", "f", "json", "output format (text|json)")
	pf.StringP("out", "o", "", "export the image, by extension (.png|.bmp|.tif|.tiff)")
	pf.BoolP("verbose", "v", false, "dump http request and response headers")
	return cmd
}

func printImage(w io.Writer, img *png.Image, format string) error {
	switch format {
	case "text":
		info := img.Info
		fmt.Fprintf(w, "%dx%d %s depth %d interlace %d\n", info.Width, info.Height, info.ColorType, info.BitDepth, info.Interlace)
		for _, t := range info.Text {
			fmt.Fprintf(w, "text %s: %s\n", t.Keyword, t.Text)
		}
		for _, u := range info.Unknown {
			fmt.Fprintf(w, "unknown %s: %d bytes\n", u.Type, len(u.Data))
		}
		for _, d := range img.Warnings {
			fmt.Fprintf(w, "warning %s\n", d)
		}
		return nil
	default:
		warnings := make([]string, len(img.Warnings))
		for i, d := range img.Warnings {
			warnings[i] = d.String()
		}
		j, err := json.Marshal(struct {
			Info     *png.Info `json:"info"`
			Warnings []string  `json:"warnings,omitempty"`
		}{img.Info, warnings})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(j))
		return err
	}
}

func export(img *png.Image, path string) error {
	m, err := img.ToImage()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := encode(f, m, strings.ToLower(filepath.Ext(path))); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

func encode(w io.Writer, m image.Image, ext string) error {
	switch ext {
	case ".png":
		return stdpng.Encode(w, m)
	case ".bmp":
		return bmp.Encode(w, m)
	case ".tif", ".tiff":
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return fmt.Errorf("unsupported export format %q", ext)
}
