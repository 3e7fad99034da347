package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"PozzySearch/internal/app"
	"PozzySearch/internal/domain"
	"PozzySearch/internal/infrastructure/httpapi"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search every enabled source and print ranked products",
		ArgsUsage: "QUERY",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "min-price", Usage: "Minimum price in BRL"},
			&cli.StringFlag{Name: "max-price", Usage: "Maximum price in BRL"},
			&cli.StringFlag{Name: "category", Usage: "Category hint forwarded to sources"},
			&cli.StringSliceFlag{Name: "color", Usage: "Color hint, repeatable"},
			&cli.BoolFlag{Name: "in-stock", Usage: "Only show products in stock"},
			&cli.IntFlag{Name: "pages", Value: 1, Usage: "Number of pages to load"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: runSearch,
	}
}

func runSearch(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return cli.Exit("usage: pozzysearch search QUERY", 2)
	}

	values := url.Values{}
	values.Set("min_price", c.String("min-price"))
	values.Set("max_price", c.String("max-price"))
	values.Set("category", c.String("category"))
	values["color"] = c.StringSlice("color")
	if c.Bool("in-stock") {
		values.Set("in_stock", "true")
	}
	filters, err := httpapi.ParseFilters(values)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	return withApp(c, func(ctx context.Context, a *app.Application) error {
		search := a.NewSearch()
		products, err := search.Search(ctx, query, filters)
		if err != nil {
			return err
		}

		page := 1
		for page < c.Int("pages") && search.State().HasMore {
			if products, err = search.LoadMore(ctx); err != nil {
				return err
			}
			page++
		}

		state := search.State()
		if c.Bool("json") {
			return printJSON(httpapi.SearchResponse{
				Query:    state.Query,
				Page:     page,
				HasMore:  state.HasMore,
				Count:    len(products),
				Products: httpapi.NewProductViews(products),
			})
		}

		if err := writeProducts(os.Stdout, products); err != nil {
			return err
		}
		more := ""
		if state.HasMore {
			more = ", more available with --pages"
		}
		fmt.Fprintf(os.Stderr, "%d products, %d page(s)%s\n", len(products), page, more)
		return nil
	})
}

func writeProducts(out io.Writer, products []domain.Product) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tSALE\tSTOCK\tSOURCE")
	for _, p := range products {
		sale := "-"
		if p.OnSale() {
			sale = p.Discount().String() + "%"
		}
		stock := "yes"
		if !p.InStock {
			stock = "no"
		}
		fmt.Fprintf(w, "%s\t%s\tR$ %s\t%s\t%s\t%s\n",
			p.ID, truncate(p.Name, 48), p.Price.StringFixed(2), sale, stock, p.Source)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func sourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "List configured sources",
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.Application) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tENABLED\tPRIORITY\tBASE URL")
				for _, s := range a.Sources() {
					fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n", s.ID, s.Kind, s.Enabled, s.Priority, s.BaseURL)
				}
				return w.Flush()
			})
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recently recorded searches",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Number of entries"},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.Application) error {
				history := a.History()
				if history == nil {
					return errors.New("search history is disabled, set POZZY_DATABASE_DSN")
				}
				records, err := history.Recent(ctx, c.Int("limit"))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STARTED\tQUERY\tPAGE\tRESULTS\tFAILED\tDURATION")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
						r.StartedAt.Local().Format(time.DateTime),
						r.Query,
						r.Page,
						r.Results,
						strings.Join(r.FailedSources, ","),
						r.Duration.Round(time.Millisecond),
					)
				}
				return w.Flush()
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON search API, /healthz and /metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Listen address (defaults to server.addr)",
				EnvVars: []string{"POZZY_SERVER_ADDR"},
			},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.Application) error {
				return a.Serve(ctx, c.String("addr"))
			})
		},
	}
}
