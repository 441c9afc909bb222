package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/jpfielding/png.go/pkg/logging"
	"github.com/jpfielding/png.go/pkg/png"
	"github.com/spf13/cobra"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pngctl",
		Short: "a CLI to inspect and decode PNG streams",
		Long:  "pngctl validates PNG chunk streams, reports recoverable problems and exports decoded images",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")
			logJSON, _ := cmd.Flags().GetBool("log-json")

			var level slog.Level
			levelErr := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
			if levelErr != nil {
				level = slog.LevelInfo
			}
			var w io.Writer = os.Stderr
			if logFile != "" {
				w = logging.FileWriter(logFile, 10, 3)
			}
			slog.SetDefault(logging.Logger(w, logJSON, level))
			if levelErr != nil {
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", levelErr)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewDecodeCmd(ctx),
		NewAnalyzeCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "write logs to a rotated file instead of stderr")
	pf.Bool("log-json", false, "log as JSON")
	pf.Int64("chunk-max", png.DefaultOptions().ChunkMax, "memory limit for one chunk, 0 for none")
	pf.Int64("inflate-max", 0, "memory limit for decompressed text and ICC data, 0 uses chunk-max")
	pf.Int("cache-max", png.DefaultOptions().CacheMax, "number of text and unknown chunks kept, 0 for no limit")
	pf.Bool("strict", false, "treat recoverable problems as errors")
	pf.String("keep-unknown", "never", "unknown chunks to keep (never|if-safe|always)")
	pf.Bool("display", false, "replicate interlaced pixels for progressive display")
	return cmd
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gitsha)
		},
	}
	return cmd
}

// decodeOptions maps the persistent flags onto decoder options.
func decodeOptions(cmd *cobra.Command) (*png.Options, error) {
	o := png.DefaultOptions()
	o.ChunkMax, _ = cmd.Flags().GetInt64("chunk-max")
	o.InflateMax, _ = cmd.Flags().GetInt64("inflate-max")
	o.CacheMax, _ = cmd.Flags().GetInt("cache-max")
	o.StrictBenign, _ = cmd.Flags().GetBool("strict")
	o.Display, _ = cmd.Flags().GetBool("display")
	o.Logger = slog.Default()
	switch keep, _ := cmd.Flags().GetString("keep-unknown"); keep {
	case "never", "":
		o.KeepUnknown = png.KeepNever
	case "if-safe":
		o.KeepUnknown = png.KeepIfSafe
	case "always":
		o.KeepUnknown = png.KeepAlways
	default:
		return nil, fmt.Errorf("unknown keep-unknown value %q", keep)
	}
	return o, nil
}

// openURI opens a file path, "-" for stdin, or an http(s) URL.
func openURI(ctx context.Context, uri string, verbose bool) (io.ReadCloser, error) {
	uri = strings.TrimPrefix(uri, "file://")
	switch {
	case uri == "":
		return nil, fmt.Errorf("uri is required")
	case uri == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(uri, "http"):
		// TODO make certificate verification a flag
		cl := &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := cl.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download: %w", err)
		}
		if verbose {
			reqDump, _ := httputil.DumpRequest(req, true)
			os.Stderr.Write(reqDump)
			resDump, _ := httputil.DumpResponse(resp, false)
			os.Stderr.Write(resDump)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to download: %s", resp.Status)
		}
		return resp.Body, nil
	default:
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		return f, nil
	}
}
