package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	goCartes "github.com/MrEthical07/goCartes"
	"github.com/spf13/cobra"
)

// EnvPassword lets scripts log in without a prompt.
const EnvPassword = "CARTES_PASSWORD"

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a session and store it locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()

			if password == "" {
				password = os.Getenv(EnvPassword)
			}
			if password == "" {
				p, err := readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Mot de passe: ")
				if err != nil {
					return err
				}
				password = p
			}

			user, err := a.client.Login(ctx, username, password)
			if err != nil {
				return a.fail(err)
			}
			in, _ := a.client.RefreshScheduledIn()
			a.logger.Info().
				Str("user", user.Username).
				Str("role", string(user.Role)).
				Dur("refresh_in", in).
				Msg("logged in")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: $"+EnvPassword+" or prompt)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func readLine(in io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if _, err := a.client.Initialize(ctx); err != nil {
				a.logger.Debug().Err(err).Msg("stored session unusable")
			}
			return a.fail(a.client.Logout(ctx))
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the operator of the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			user, err := a.restore(ctx)
			if err != nil {
				return a.fail(err)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Utilisateur\t%s\n", user.Username)
			fmt.Fprintf(tw, "Nom\t%s\n", user.FullName)
			fmt.Fprintf(tw, "Rôle\t%s\n", user.Role)
			fmt.Fprintf(tw, "Agence\t%s\n", user.Agency)
			fmt.Fprintf(tw, "Permissions\t%s\n", strings.Join(a.client.Permissions(), ", "))
			if in, ok := a.client.RefreshScheduledIn(); ok {
				fmt.Fprintf(tw, "Renouvellement\tdans %s\n", in.Round(time.Second))
			}
			return tw.Flush()
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show inventory statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if _, err := a.restore(ctx); err != nil {
				return a.fail(err)
			}

			var (
				stats goCartes.Statistics
				err   error
			)
			if force {
				stats, err = a.client.ForceRefreshStatistics(ctx)
			} else {
				stats, err = a.client.RefreshStatistics(ctx)
			}
			if err != nil {
				return a.fail(err)
			}
			printStatistics(a.out, stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ask the backend to recompute before reading")
	return cmd
}

func printStatistics(w io.Writer, stats goCartes.Statistics) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SITE\tTOTAL\tRETIRÉES\tRESTANTES\t%\t")
	for _, s := range stats.Sites {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t\n", s.Site, s.Total, s.Withdrawn, s.Remaining, s.WithdrawalPercent())
	}
	g := stats.Global
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t%d\t\n", g.Total, g.Withdrawn, g.Remaining, g.WithdrawalPercent())
	_ = tw.Flush()
}

func newCartesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cartes",
		Short: "Browse and edit the inventory",
	}

	var page, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List one page of cartes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if _, err := a.restore(ctx); err != nil {
				return a.fail(err)
			}
			res, err := a.client.ListCartesPage(ctx, page, limit)
			if err != nil {
				return a.fail(err)
			}
			printCartes(a.out, res)
			return nil
		},
	}
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&limit, "limit", 50, "cartes per page")

	var criteria goCartes.SearchCriteria
	search := &cobra.Command{
		Use:   "search",
		Short: "Search the inventory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if _, err := a.restore(ctx); err != nil {
				return a.fail(err)
			}
			res, err := a.client.SearchCartes(ctx, criteria)
			if err != nil {
				return a.fail(err)
			}
			printCartes(a.out, res)
			return nil
		},
	}
	sf := search.Flags()
	sf.StringVar(&criteria.LastName, "nom", "", "last name contains")
	sf.StringVar(&criteria.FirstName, "prenom", "", "first names contain")
	sf.StringVar(&criteria.Contact, "contact", "", "contact contains")
	sf.StringVar(&criteria.WithdrawalSite, "site", "", "withdrawal site contains")
	sf.StringVar(&criteria.BirthPlace, "lieu-naissance", "", "birth place contains")
	sf.StringVar(&criteria.BirthDate, "date-naissance", "", "birth date contains")
	sf.StringVar(&criteria.Storage, "rangement", "", "storage slot contains")
	sf.IntVar(&criteria.Page, "page", 0, "page number")
	sf.IntVar(&criteria.Limit, "limit", 0, "results per page")

	var deliveryContact string
	deliver := &cobra.Command{
		Use:   "deliver ID",
		Short: "Mark a carte as handed over today",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if _, err := a.restore(ctx); err != nil {
				return a.fail(err)
			}
			carte, err := findCarte(ctx, a.client, id)
			if err != nil {
				return a.fail(err)
			}
			carte.Delivery = "OUI"
			carte.DeliveryDate = time.Now().Format("2006-01-02")
			if deliveryContact != "" {
				carte.DeliveryContact = deliveryContact
			}
			if err := a.client.UpdateCartes(ctx, []goCartes.Carte{carte}); err != nil {
				return a.fail(err)
			}
			a.logger.Info().Int("id", id).Msg("carte delivered")
			return nil
		},
	}
	deliver.Flags().StringVar(&deliveryContact, "contact", "", "contact of the person collecting the card")

	remove := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a carte",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if _, err := a.restore(ctx); err != nil {
				return a.fail(err)
			}
			if err := a.client.DeleteCarte(ctx, id); err != nil {
				return a.fail(err)
			}
			a.logger.Info().Int("id", id).Msg("carte deleted")
			return nil
		},
	}

	cmd.AddCommand(list, search, deliver, remove)
	return cmd
}

// findCarte returns the stored record so a batch update writes every column back.
func findCarte(ctx context.Context, client *goCartes.Client, id int) (goCartes.Carte, error) {
	all, err := client.ListCartes(ctx)
	if err != nil {
		return goCartes.Carte{}, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, nil
		}
	}
	return goCartes.Carte{}, fmt.Errorf("carte %d not found", id)
}

func printCartes(w io.Writer, page goCartes.CartesPage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOM\tPRÉNOMS\tSITE\tRANGEMENT\tDÉLIVRÉE")
	for _, c := range page.Cartes {
		delivered := "non"
		if c.Delivered() {
			delivered = "oui"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.LastName, c.FirstNames, c.WithdrawalSite, c.Storage, delivered)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "page %d/%d, %d cartes\n", page.Page, page.TotalPages, page.Total)
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a spreadsheet of cartes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if _, err := a.restore(ctx); err != nil {
				return a.fail(err)
			}
			if err := a.client.ValidateImportFile(info.Name(), info.Size()); err != nil {
				return a.fail(err)
			}
			res, err := a.client.ImportCartes(ctx, info.Name(), f, info.Size())
			if err != nil {
				return a.fail(err)
			}

			fmt.Fprintf(a.out, "%s\nimportées: %d, mises à jour: %d, ignorées: %d (%s)\n",
				res.Message, res.Imported, res.Updated, res.Skipped, res.Duration.Round(time.Millisecond))
			for _, rowErr := range res.Errors {
				fmt.Fprintf(a.out, "  ligne %d: %s\n", rowErr.Row, rowErr.Message)
			}
			return nil
		},
	}
}

func newTemplateCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Download the empty import workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if _, err := a.restore(ctx); err != nil {
				return a.fail(err)
			}

			path := filepath.Join(dir, goCartes.TemplateFileName(time.Now()))
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := a.client.DownloadTemplate(ctx, f); err != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return a.fail(err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.logger.Info().Str("file", path).Msg("template saved")
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to save the workbook in")
	return cmd
}
