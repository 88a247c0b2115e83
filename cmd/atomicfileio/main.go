// Command atomicfileio atomically replaces the contents of a file from
// stdin or an input file. Readers of the output file see either its
// previous contents or the complete new contents, never a partial
// write; on any failure (including an interrupt mid-copy) the output
// file is left untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sammck/atomicfileio"
)

// copyBufferSize is the chunk size for streaming input to the temp
// file.
const copyBufferSize = 1 << 20

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("atomicfileio", flag.ContinueOnError)
	flags.Usage = usage

	var (
		input   string
		force   bool
		owner   string
		group   string
		perms   string
		umask   string
		keep    bool
		verbose bool
	)
	flags.StringVar(&input, "i", "", "")
	flags.StringVar(&input, "input-file", "", "Read from the named file instead of stdin")
	flags.BoolVar(&force, "f", false, "")
	flags.BoolVar(&force, "force-permissions", false, "Replace owner, group, and permission bits even if the file exists")
	flags.StringVar(&owner, "u", "", "")
	flags.StringVar(&owner, "user", "", "Owning user name or UID for a new file (or with -f)")
	flags.StringVar(&group, "g", "", "")
	flags.StringVar(&group, "group", "", "Owning group name or GID for a new file (or with -f)")
	flags.StringVar(&perms, "p", "", "")
	flags.StringVar(&perms, "perms", "", "Permission bits in octal for a new file (or with -f)")
	flags.StringVar(&umask, "umask", "", "Umask in octal to apply to the permission bits; defaults to the process umask")
	flags.BoolVar(&keep, "k", false, "")
	flags.BoolVar(&keep, "keep-temp-file", false, "Keep the temp file on error instead of deleting it")
	flags.BoolVar(&verbose, "v", false, "")
	flags.BoolVar(&verbose, "verbose", false, "Enable debug logging")

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one output file is required")
		flags.Usage()
		return 2
	}
	target := flags.Arg(0)

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	opts := atomicfileio.Options{
		Mode:            atomicfileio.WriteBinary,
		ReplacePerms:    force,
		Owner:           owner,
		Group:           group,
		KeepTempOnError: keep,
		Logger:          logger,
	}
	if perms != "" {
		mode, err := parseOctalFlag("perms", perms)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		opts.Perms = &mode
	}
	if umask != "" {
		mode, err := parseOctalFlag("umask", umask)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		opts.Umask = &mode
	}

	// An interrupt mid-copy aborts the replacement through the scoped
	// cleanup path: the temp file is removed (unless -k) and the
	// target is never touched.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := io.Reader(os.Stdin)
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer f.Close()
		// Close the input on cancellation so a Read blocked on it
		// returns immediately. A read blocked on stdin has no such
		// escape and is only abandoned once it returns.
		unblock := context.AfterFunc(ctx, func() { f.Close() })
		defer unblock()
		in = f
	}

	err := atomicfileio.Replace(target, opts, func(p *atomicfileio.PendingFile) error {
		return copyContext(ctx, p, in)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: atomicfileio [options] <output-file>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Atomically replace the contents of a file. Input is read from stdin")
	fmt.Fprintln(os.Stderr, "unless -i is given.")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprintln(os.Stderr, "  -i, --input-file FILE     Read from FILE instead of stdin")
	fmt.Fprintln(os.Stderr, "  -f, --force-permissions   Replace owner/group/permissions even if the file exists")
	fmt.Fprintln(os.Stderr, "  -u, --user USER           Owning user name or UID for a new file (or with -f)")
	fmt.Fprintln(os.Stderr, "  -g, --group GROUP         Owning group name or GID for a new file (or with -f)")
	fmt.Fprintln(os.Stderr, "  -p, --perms OCTAL         Permission bits for a new file (or with -f)")
	fmt.Fprintln(os.Stderr, "      --umask OCTAL         Umask to apply; defaults to the process umask")
	fmt.Fprintln(os.Stderr, "  -k, --keep-temp-file      Keep the temp file on error")
	fmt.Fprintln(os.Stderr, "  -v, --verbose             Enable debug logging")
}

func parseOctalFlag(name, s string) (fs.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil || v > 0o7777 {
		return 0, fmt.Errorf("invalid octal value %q for --%s", s, name)
	}
	return fs.FileMode(v), nil
}

// copyContext copies src to dst in chunks, stopping with the context's
// error as soon as it is canceled. Cancellation is only observed
// between chunks: a Read already in progress blocks until it returns,
// so callers should arrange for the source to be closed on
// cancellation when the source supports it.
func copyContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
