package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/JonMunkholm/phantom/internal/core"
	"github.com/JonMunkholm/phantom/internal/store/postgres"
	"github.com/JonMunkholm/phantom/internal/store/sqlite"
	"github.com/JonMunkholm/phantom/internal/web"
)

// store is what every command needs from a backend.
type store interface {
	core.Store
	core.Counter
	EnsureSchema(ctx context.Context) error
}

// openStore opens the backend selected by --sqlite or the database config.
// pooled selects a pgx pool instead of a single connection.
func (e *env) openStore(c *cli.Context, pooled bool) (store, func(), error) {
	e.applyStoreFlags(c)
	ctx := c.Context

	if path := c.String("sqlite"); path != "" {
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		e.logger.Debug("opened sqlite store", "path", path)
		return sqliteStore{s}, func() { s.Close() }, nil
	}

	connString, err := e.cfg.Database.ConnString()
	if err != nil {
		return nil, nil, err
	}

	if pooled {
		pool, err := postgres.NewPool(ctx, connString, e.cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, e.cfg.Database.ConnectTimeout)
	defer cancel()
	conn, err := postgres.Connect(connectCtx, connString)
	if err != nil {
		return nil, nil, err
	}
	return postgres.New(conn), func() { conn.Close(context.Background()) }, nil
}

// sqliteStore adds EnsureSchema to the sqlite store, which creates its
// schema on open.
type sqliteStore struct {
	*sqlite.Store
}

func (sqliteStore) EnsureSchema(context.Context) error { return nil }

func (e *env) importCommand(c *cli.Context) error {
	return e.runImport(c, c.Bool("check-only"))
}

func (e *env) checkCommand(c *cli.Context) error {
	return e.runImport(c, true)
}

func (e *env) runImport(c *cli.Context, checkOnly bool) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing FILE argument", 1)
	}

	s, closeStore, err := e.openStore(c, false)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := c.Context
	if e.cfg.Import.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Import.Timeout)
		defer cancel()
	}

	importer := core.NewImporter(s, e.logger.With("file", path))
	result, err := importer.ImportFile(ctx, path, e.cfg.Import.MaxFileSize, checkOnly)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		if err := e.printJSON(result); err != nil {
			return err
		}
	} else {
		e.printResult(result)
	}

	if result.State == core.StateBlocked {
		return cli.Exit(core.MapError(core.ErrDuplicatesFound).String(), exitDuplicates)
	}
	return nil
}

func (e *env) statsCommand(c *cli.Context) error {
	s, closeStore, err := e.openStore(c, false)
	if err != nil {
		return err
	}
	defer closeStore()

	counts, err := s.Counts(c.Context)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return e.printJSON(counts)
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS")
	fmt.Fprintf(tw, "people\t%d\n", counts.People)
	fmt.Fprintf(tw, "person_types\t%d\n", counts.PersonTypes)
	fmt.Fprintf(tw, "nationalities\t%d\n", counts.Nationalities)
	fmt.Fprintf(tw, "person_types_junction\t%d\n", counts.PersonTypeLinks)
	fmt.Fprintf(tw, "person_nationalities_junction\t%d\n", counts.PersonNationalityLinks)
	return tw.Flush()
}

func (e *env) initCommand(c *cli.Context) error {
	s, closeStore, err := e.openStore(c, false)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := s.EnsureSchema(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "schema ready")
	return nil
}

func (e *env) serveCommand(c *cli.Context) error {
	s, closeStore, err := e.openStore(c, true)
	if err != nil {
		return err
	}
	defer closeStore()

	importer := core.NewImporter(s, e.logger)
	server := web.NewServer(importer, s, e.cfg, e.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-c.Context.Done():
	}

	e.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		e.logger.Warn("shutdown incomplete", "error", err)
		return err
	}
	e.logger.Info("server stopped")
	return nil
}

func (e *env) printResult(r core.ImportResult) {
	switch r.State {
	case core.StateCommitted:
		fmt.Fprintf(e.stdout, "imported %d of %d records (run %s, %dms)\n",
			r.Inserted, r.Records, r.RunID, r.Duration.Milliseconds())
	case core.StateChecked:
		fmt.Fprintf(e.stdout, "no duplicates in %d records (run %s)\n", r.Records, r.RunID)
	case core.StateBlocked:
		fmt.Fprintf(e.stdout, "%d duplicates found in %d records, nothing imported (run %s)\n",
			len(r.Duplicates), r.Records, r.RunID)
		e.printDuplicates(r.Duplicates)
	default:
		fmt.Fprintf(e.stdout, "import %s (run %s)\n", r.State, r.RunID)
	}
}

func (e *env) printDuplicates(dups []core.DuplicateReport) {
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tNEW NAME\tNEW SURNAME\tEXISTING ID\tEXISTING NAME\tEXISTING SURNAME")
	for _, d := range dups {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			d.Line, d.NewName, d.NewSurname.String, d.ExistingID, d.ExistingName, d.ExistingSurname.String)
	}
	tw.Flush()
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
