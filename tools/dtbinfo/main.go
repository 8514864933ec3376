// Command dtbinfo inspects flattened device tree blobs using the same reader
// the kernel runs at boot.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// withBlob maps the blob named by the single positional argument and invokes
// fn with it.
func withBlob(f *flag.FlagSet, fn func(*blobFile) error) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	path := f.Arg(0)
	b, err := openBlob(path)
	if err != nil {
		logrus.WithError(err).Error("[dtbinfo] unable to load device tree")
		return subcommands.ExitFailure
	}
	defer func() {
		if err := b.Close(); err != nil {
			logrus.WithError(err).WithField("path", path).Warn("[dtbinfo] unable to unmap device tree")
		}
	}()

	hdr := b.tree.Header()
	logrus.WithFields(logrus.Fields{
		"path":    path,
		"version": hdr.Version,
		"size":    hdr.TotalSize,
	}).Debug("[dtbinfo] loaded device tree")

	if err = fn(b); err != nil {
		logrus.WithError(err).WithField("path", path).Error("[dtbinfo] unable to read device tree")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// dump implements subcommands.Command for the "dump" command.
type dump struct{}

// Name implements subcommands.Command.
func (*dump) Name() string { return "dump" }

// Synopsis implements subcommands.Command.
func (*dump) Synopsis() string { return "prints the device tree in source format" }

// Usage implements subcommands.Command.
func (*dump) Usage() string { return "dump <file.dtb>\n" }

// SetFlags implements subcommands.Command.
func (*dump) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*dump) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	return withBlob(f, func(b *blobFile) error {
		if kerr := b.tree.DumpTo(os.Stdout); kerr != nil {
			return kerr
		}
		return nil
	})
}

// summary implements subcommands.Command for the "summary" command.
type summary struct{}

// Name implements subcommands.Command.
func (*summary) Name() string { return "summary" }

// Synopsis implements subcommands.Command.
func (*summary) Synopsis() string {
	return "prints the memory, reservations and boot arguments the kernel uses"
}

// Usage implements subcommands.Command.
func (*summary) Usage() string { return "summary <file.dtb>\n" }

// SetFlags implements subcommands.Command.
func (*summary) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*summary) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	return withBlob(f, func(b *blobFile) error {
		return summarize(os.Stdout, &b.tree)
	})
}

// checkCmd implements subcommands.Command for the "check" command.
type checkCmd struct {
	layout string
}

// Name implements subcommands.Command.
func (*checkCmd) Name() string { return "check" }

// Synopsis implements subcommands.Command.
func (*checkCmd) Synopsis() string {
	return "verifies that the kernel layout fits the machine described by a device tree"
}

// Usage implements subcommands.Command.
func (*checkCmd) Usage() string { return "check [-layout file.toml] <file.dtb>\n" }

// SetFlags implements subcommands.Command.
func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.layout, "layout", "", "TOML file overriding the physical kernel layout.")
}

// Execute implements subcommands.Command.
func (c *checkCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	layout, err := loadLayout(c.layout)
	if err != nil {
		logrus.WithError(err).WithField("layout", c.layout).Error("[dtbinfo] unable to load layout")
		return subcommands.ExitFailure
	}

	var problems int
	status := withBlob(f, func(b *blobFile) error {
		problems, err = check(os.Stdout, &b.tree, layout)
		return err
	})
	if status == subcommands.ExitSuccess && problems != 0 {
		logrus.WithField("problems", problems).Warn("[dtbinfo] kernel layout does not fit the machine")
		return subcommands.ExitFailure
	}
	return status
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging.")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(dump), "")
	subcommands.Register(new(summary), "")
	subcommands.Register(new(checkCmd), "")

	flag.Parse()
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
