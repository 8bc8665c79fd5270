// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"

	"github.com/elliotnunn/FvHierarchic/internal/eficomp"
	"github.com/elliotnunn/FvHierarchic/internal/fv"
	"github.com/elliotnunn/FvHierarchic/internal/webdavadapter"
)

type InfoCmd struct {
	Files []string `arg:"" type:"path" help:"Images or volumes to describe"`
}

func (c *InfoCmd) Run(g *Globals) error {
	w := g.out()
	for _, name := range c.Files {
		b, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:\n", name)

		v, err := fv.Parse(b)
		if !errors.Is(err, fv.ErrNotVolume) {
			describeVolume(w, v, err)
			continue
		}

		size, scratch, err := eficomp.GetInfo(b)
		if err != nil {
			fmt.Fprintf(w, "\tnot a compressed image or volume: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "\tcompressed=%d decoded=%d scratch=%d\n", len(b)-8, size, scratch)
		if _, variant, err := expandFirst(variants("auto"), func(v eficomp.Version) ([]byte, error) {
			return eficomp.Expand(b, v)
		}); err != nil {
			fmt.Fprintf(w, "\tdamaged: %v\n", err)
		} else {
			fmt.Fprintf(w, "\tvariant=%s\n", variant)
		}
	}
	return nil
}

func describeVolume(w io.Writer, v *fv.Volume, err error) {
	if v != nil {
		fmt.Fprintf(w, "\tvolume fs=%s length=%#x revision=%d checksum-ok=%v files=%d\n",
			v.FileSystem, v.Length, v.Revision, v.ChecksumOK, len(v.Files))
		for _, f := range v.Files {
			fmt.Fprintf(w, "\t%s %s %q\n", f.Name, f.Type, f.UI)
		}
	}
	if err != nil {
		fmt.Fprintf(w, "\tdamaged: %v\n", err)
	}
}

type DecompressCmd struct {
	Input   string `arg:"" type:"existingfile" help:"Compressed image"`
	Output  string `short:"o" type:"path" help:"Destination, or standard output if omitted"`
	Variant string `enum:"auto,efi,tiano" default:"auto" help:"Format variant (${enum})"`
}

func (c *DecompressCmd) Run(g *Globals) error {
	b, err := os.ReadFile(c.Input)
	if err != nil {
		return err
	}
	data, variant, err := expandFirst(variants(c.Variant), func(v eficomp.Version) ([]byte, error) {
		return eficomp.Expand(b, v)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.Input, err)
	}
	slog.Debug("decompressed", "path", c.Input, "variant", variant, "size", len(data))
	return c.write(g, data)
}

func (c *DecompressCmd) write(g *Globals, data []byte) error {
	if c.Output == "" {
		_, err := g.out().Write(data)
		return err
	}
	return os.WriteFile(c.Output, data, 0o644)
}

type CompressCmd struct {
	Input   string `arg:"" type:"existingfile" help:"File to compress"`
	Output  string `short:"o" type:"path" required:"" help:"Destination"`
	Variant string `enum:"efi,tiano" default:"efi" help:"Format variant (${enum})"`
	Format  string `enum:"raw,section,volume" default:"raw" help:"Bare image, compressed section, or firmware volume (${enum})"`
	GUID    string `name:"guid" default:"3A8F6E2C-5B19-4D57-9E0C-7F1B24D6A9E3" help:"Name of the file in a firmware volume"`
}

func (c *CompressCmd) Run(g *Globals) error {
	b, err := os.ReadFile(c.Input)
	if err != nil {
		return err
	}
	v := variants(c.Variant)[0]

	var out []byte
	switch c.Format {
	case "raw":
		out, err = eficomp.Compress(b, v)
	case "section":
		out, err = fv.CompressionSection(fv.AppendSection(nil, fv.SectionRaw, b), v)
	case "volume":
		var name fv.GUID
		name, err = fv.ParseGUID(c.GUID)
		if err != nil {
			return err
		}
		var sec []byte
		sec, err = fv.CompressionSection(fv.AppendSection(nil, fv.SectionRaw, b), v)
		if err == nil {
			out = fv.BuildVolume(fv.AppendFile(nil, name, fv.FileFreeform, sec), 0x1000)
		}
	}
	if err != nil {
		return err
	}
	slog.Debug("compressed", "path", c.Input, "variant", v, "format", c.Format, "in", len(b), "out", len(out))
	return os.WriteFile(c.Output, out, 0o644)
}

type ScanCmd struct {
	Root    string   `arg:"" optional:"" type:"existingdir" default:"." help:"Directory to scan"`
	Include []string `short:"i" default:"**" help:"Only list paths matching these globs"`
}

func (c *ScanCmd) Run(g *Globals) error {
	fsys, done, err := g.wrap(c.Root)
	if err != nil {
		return err
	}
	defer done()
	return dumpFS(g.out(), fsys, c.Include)
}

type ServeCmd struct {
	Root     string `arg:"" optional:"" type:"existingdir" default:"." help:"Directory to serve"`
	Listen   string `default:":1993" env:"FVH_LISTEN" help:"Address to listen on"`
	Prefetch bool   `help:"Open every image in the background before it is asked for"`
	WebDAV   bool   `name:"webdav" help:"Serve WebDAV, which file managers can mount, instead of plain HTTP"`
}

func (c *ServeCmd) Run(g *Globals) error {
	fsys, done, err := g.wrap(c.Root)
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ln, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: http.FileServerFS(fsys)}
	if c.WebDAV {
		srv.Handler = webdavadapter.New(fsys)
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if c.Prefetch {
		go fsys.Prefetch(runtime.NumCPU())
	}

	slog.Info("serving", "root", c.Root, "addr", ln.Addr().String(), "webdav", c.WebDAV)
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func variants(name string) []eficomp.Version {
	switch name {
	case "efi":
		return []eficomp.Version{eficomp.EFI}
	case "tiano":
		return []eficomp.Version{eficomp.Tiano}
	default:
		return []eficomp.Version{eficomp.EFI, eficomp.Tiano}
	}
}
