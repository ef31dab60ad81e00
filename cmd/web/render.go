package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jimshazmatremoval.com.au/auburn-web/internal/config"
	"jimshazmatremoval.com.au/auburn-web/internal/loader"
	"jimshazmatremoval.com.au/auburn-web/internal/observability"
	"jimshazmatremoval.com.au/auburn-web/internal/site"
)

type renderOptions struct {
	siteRoot       string
	manifest       string
	location       string
	fragmentOrigin string
	toggle         string
	output         string
	verbose        bool
}

func newRenderCmd() *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render PAGE",
		Short: "Assemble one page and write the resulting HTML",
		Long: `render assembles PAGE (a path under the site root, e.g. services/mould-removal.html)
exactly as the server would and writes the document to stdout or --out. --location overrides
the address the page is assembled for; a file:// location shows the local-file advisory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if opts.output != "" {
				f, err := os.Create(opts.output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return runRender(cmd.Context(), opts, args[0], out)
		},
	}
	cmd.Flags().StringVar(&opts.siteRoot, "site", "site", "site root directory")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "site manifest (default <site>/site.yaml)")
	cmd.Flags().StringVar(&opts.location, "location", "", "address to assemble the page for (default http://localhost/PAGE)")
	cmd.Flags().StringVar(&opts.fragmentOrigin, "fragment-origin", "", "load fragments over HTTP from this origin")
	cmd.Flags().StringVar(&opts.toggle, "toggle", "", "click the sidebar trigger for this service before writing")
	cmd.Flags().StringVarP(&opts.output, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log assembly steps to stderr")
	return cmd
}

func runRender(ctx context.Context, opts *renderOptions, page string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := zap.NewNop()
	if opts.verbose {
		var err error
		logger, err = observability.NewLogger("debug")
		if err != nil {
			return err
		}
	}
	ctx = observability.WithLogger(ctx, logger)

	manifestPath := opts.manifest
	if manifestPath == "" {
		manifestPath = filepath.Join(opts.siteRoot, "site.yaml")
	}
	manifest, err := site.Load(manifestPath)
	if err != nil {
		return err
	}
	siteFS := os.DirFS(opts.siteRoot)
	builder, err := newPageBuilder(ctx, siteFS, manifest,
		config.SiteConfig{Root: opts.siteRoot, FragmentOrigin: opts.fragmentOrigin},
		config.CacheConfig{}, nil, func(io.Closer) {})
	if err != nil {
		return err
	}

	name, ok := builder.pageName("/" + strings.TrimPrefix(page, "/"))
	if !ok {
		return fmt.Errorf("not a page: %s", page)
	}
	rawLocation := opts.location
	if rawLocation == "" {
		rawLocation = "http://localhost/" + name
	}
	u, err := url.Parse(rawLocation)
	if err != nil {
		return fmt.Errorf("parse location: %w", err)
	}

	body, report, err := builder.build(ctx, name, loader.Resolve(u), opts.toggle)
	if err != nil {
		return err
	}
	for frag, res := range report.Results {
		if !res.OK {
			logger.Warn("fragment not loaded", zap.String("fragment", frag), zap.Error(res.Err))
		}
	}
	_, err = out.Write(body)
	return err
}
