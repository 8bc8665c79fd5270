// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/elliotnunn/FvHierarchic/internal/decompressioncache"
)

type Globals struct {
	Debug   bool     `help:"Log debug messages" short:"d" env:"FVH_DEBUG"`
	Cache   string   `help:"Directory to keep decoded images between runs" type:"path" env:"FVH_CACHE"`
	Exclude []string `help:"Never probe files matching these globs" default:"**/*.crdownload,**/*.part"`

	Stdout io.Writer `kong:"-"`
}

type CLI struct {
	Globals

	Info       InfoCmd       `cmd:"" help:"Describe compressed images and firmware volumes"`
	Decompress DecompressCmd `cmd:"" help:"Decode an EFI or Tiano compressed image"`
	Compress   CompressCmd   `cmd:"" help:"Encode a file as a compressed image, section or firmware volume"`
	Scan       ScanCmd       `cmd:"" help:"List a tree with every image and volume opened up"`
	Serve      ServeCmd      `cmd:"" help:"Serve a tree over HTTP with every image and volume opened up"`
}

func (g *Globals) out() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) validate() error {
	for _, pat := range g.Exclude {
		if !doublestar.ValidatePattern(pat) {
			return doublestar.ErrBadPattern
		}
	}
	return nil
}

func (g *Globals) openCache() (*decompressioncache.Cache, error) {
	return decompressioncache.New(decompressioncache.Options{
		Entries: cacheEntries(),
		Dir:     g.Cache,
	})
}

func (g *Globals) wrap(root string) (*FS, func() error, error) {
	if err := g.validate(); err != nil {
		return nil, nil, err
	}
	cache, err := g.openCache()
	if err != nil {
		return nil, nil, err
	}
	return Wrapper(os.DirFS(root), cache, g.Exclude), cache.Close, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("fvh"),
		kong.Description("Browse, decode and encode UEFI compressed images and firmware volumes"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
