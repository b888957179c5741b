package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/a11y-tracker/internal/sites"
)

func newSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage the site registry.",
	}
	cmd.AddCommand(newSitesAddCmd(), newSitesListCmd())
	return cmd
}

func newSitesAddCmd() *cobra.Command {
	var rawURL string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a site, creating its spreadsheet and assigning a weekday.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			entry, err := addSite(cmd.Context(), appInstance, rawURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", entry.URL, entry.Name, entry.StartDate, entry.SheetURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&rawURL, "url", "", "site URL to register")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func addSite(ctx context.Context, appInstance *App, rawURL string) (sites.Entry, error) {
	cfg := appInstance.Config
	registry, err := loadRegistry(cfg)
	if err != nil {
		return sites.Entry{}, err
	}
	publisher, err := buildSheets(ctx, cfg, appInstance.Logger)
	if err != nil {
		return sites.Entry{}, err
	}
	registrar := &sites.Registrar{
		Registry: registry,
		Prober:   sites.Prober{UserAgent: cfg.Sites.UserAgent, Timeout: cfg.Sites.ProbeTimeout},
		Creator:  publisher,
		MaxPages: cfg.Sites.DefaultMaxPages,
		Logger:   appInstance.Logger.Named("sites"),
	}
	return registrar.Register(ctx, rawURL)
}

func newSitesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the registry as a Markdown table.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			registry, err := loadRegistry(appInstance.Config)
			if err != nil {
				return err
			}
			return listSites(cmd.OutOrStdout(), registry)
		},
	}
}

func listSites(w io.Writer, registry *sites.Registry) error {
	var rows [][]string
	for _, key := range registry.Keys() {
		for _, e := range registry.Entries(key) {
			maxPages := ""
			if e.Max > 0 {
				maxPages = strconv.Itoa(e.Max)
			}
			rows = append(rows, []string{key, e.Name, e.StartDate, maxPages, e.Type, strings.Join(e.Exclude, " "), e.SheetURL})
		}
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "no sites registered in %s\n", registry.Path())
		return err
	}
	return markdown.NewMarkdown(w).
		Table(markdown.TableSet{
			Header: []string{"URL", "Name", "Day", "Max", "Type", "Exclude", "Sheet"},
			Rows:   rows,
		}).
		Build()
}
