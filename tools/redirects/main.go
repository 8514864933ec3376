// Command redirects collects the functions annotated with go:redirect-from
// and patches the kernel image so that the rt0 code can install them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

var (
	rootDir = flag.String("root", ".", "the module root containing go.mod and the kernel folder.")
	debug   = flag.Bool("debug", false, "enable debug logging.")
)

// loadRedirects returns the redirects declared by the kernel sources under
// rootDir.
func loadRedirects() ([]*redirect, error) {
	if matches, _ := filepath.Glob(filepath.Join(*rootDir, "kernel")); len(matches) != 1 {
		return nil, errors.New("this tool must be run from the kernel root folder")
	}

	prefix, err := modulePath(*rootDir)
	if err != nil {
		return nil, err
	}

	goFiles, err := collectGoFiles(*rootDir, "kernel")
	if err != nil {
		return nil, err
	}

	return findRedirects(*rootDir, prefix, goFiles)
}

// count implements subcommands.Command for the "count" command.
type count struct{}

// Name implements subcommands.Command.
func (*count) Name() string { return "count" }

// Synopsis implements subcommands.Command.
func (*count) Synopsis() string { return "prints the number of redirects" }

// Usage implements subcommands.Command.
func (*count) Usage() string { return "count\n" }

// SetFlags implements subcommands.Command.
func (*count) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*count) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	redirects, err := loadRedirects()
	if err != nil {
		logrus.WithError(err).Error("[redirects] unable to collect redirects")
		return subcommands.ExitFailure
	}

	fmt.Printf("%d", len(redirects))
	return subcommands.ExitSuccess
}

// populateTable implements subcommands.Command for the "populate-table"
// command.
type populateTable struct{}

// Name implements subcommands.Command.
func (*populateTable) Name() string { return "populate-table" }

// Synopsis implements subcommands.Command.
func (*populateTable) Synopsis() string {
	return "writes the redirect table into the kernel image"
}

// Usage implements subcommands.Command.
func (*populateTable) Usage() string { return "populate-table <kernel image>\n" }

// SetFlags implements subcommands.Command.
func (*populateTable) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*populateTable) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	imgFile := f.Arg(0)

	redirects, err := loadRedirects()
	if err == nil {
		err = elfResolveRedirectSymbols(redirects, imgFile)
	}
	if err == nil {
		err = elfWriteRedirectTable(redirects, imgFile)
	}
	if err != nil {
		logrus.WithError(err).WithField("image", imgFile).Error("[redirects] unable to populate redirect table")
		return subcommands.ExitFailure
	}

	logrus.WithField("image", imgFile).Infof("[redirects] installed %d redirects", len(redirects))
	return subcommands.ExitSuccess
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(count), "")
	subcommands.Register(new(populateTable), "")

	flag.Parse()
	logrus.SetOutput(os.Stderr)
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
