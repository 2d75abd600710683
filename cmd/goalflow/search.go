package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vinayprograms/goalflow/internal/config"
	"github.com/vinayprograms/goalflow/internal/library"
)

// Run searches the library. With --watch it reprints the results whenever
// a workflow file changes, until interrupted.
func (c *SearchCmd) Run() error {
	if !c.Watch {
		return c.run(os.Stdout)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.watch(ctx, os.Stdout)
}

func (c *SearchCmd) run(w io.Writer) error {
	lib, dir, err := c.open()
	if err != nil {
		return err
	}
	defer lib.Close()
	return c.print(w, lib, dir)
}

func (c *SearchCmd) watch(ctx context.Context, w io.Writer) error {
	lib, dir, err := c.open()
	if err != nil {
		return err
	}
	defer lib.Close()
	if err := c.print(w, lib, dir); err != nil {
		return err
	}
	lib.OnChange = func(path string) {
		fmt.Fprintf(w, "\n%s %s\n", dimStyle.Render("changed:"), path)
		if err := c.print(w, lib, dir); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
	return lib.Watch(ctx)
}

func (c *SearchCmd) open() (*library.Library, string, error) {
	dir := config.ExpandPath(c.Dir)
	if dir == "" {
		cfg, err := loadConfig(c.Config)
		if err != nil {
			return nil, "", err
		}
		dir = libraryDir(cfg, "")
	}
	lib, err := library.Open(dir)
	if err != nil {
		return nil, "", err
	}
	return lib, dir, nil
}

func (c *SearchCmd) print(w io.Writer, lib *library.Library, dir string) error {
	results, err := lib.Search(c.Query, c.Limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "No workflows found in %s\n", dir)
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s %s\n", goalStyle.Render(r.Name), dimStyle.Render(r.ID))
		if r.Description != "" {
			fmt.Fprintf(w, "  %s\n", r.Description)
		}
		meta := []string{fmt.Sprintf("%d goals", r.Goals)}
		if len(r.Apps) > 0 {
			meta = append(meta, strings.Join(r.Apps, ", "))
		}
		if len(r.Parameters) > 0 {
			meta = append(meta, "params: "+strings.Join(r.Parameters, ", "))
		}
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(strings.Join(meta, " · ")))
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(r.Path))
	}
	return nil
}
