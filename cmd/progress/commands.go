package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dividis/progress-engine/config"
	"github.com/dividis/progress-engine/internal/application/command"
	"github.com/dividis/progress-engine/internal/application/query"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/infrastructure/catalog"
	"github.com/dividis/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/dividis/progress-engine/pkg/logger"
)

var errUsage = errors.New("usage")

type commandSpec struct {
	help  string
	usage string
	nargs int // minimum positional arguments

	// catalog loads the catalogue before running (unlock rules, titles).
	catalog bool
	// migrations skips DB_AUTO_MIGRATE.
	migrations bool

	run func(ctx context.Context, a *app, args []string) error
}

var commands map[string]commandSpec

func init() {
	commands = map[string]commandSpec{
		"migrate":    {help: "apply pending migrations", migrations: true, run: cmdMigrate},
		"rollback":   {help: "revert the last migration", migrations: true, run: cmdRollback},
		"migrations": {help: "show migration status", migrations: true, run: cmdMigrations},
		"seed":       {help: "upsert the catalogue", catalog: true, run: cmdSeed},
		"titles":     {help: "print level titles", catalog: true, run: cmdTitles},

		"register":    {help: "create a profile", usage: "<user>", nargs: 1, catalog: true, run: cmdRegister},
		"delete-user": {help: "delete a profile and its progress", usage: "<user>", nargs: 1, run: cmdDeleteUser},
		"declare": {help: "write a pillar declaration", usage: "<user> <module> <pillar> <text...>",
			nargs: 4, catalog: true, run: cmdDeclare},
		"complete":        {help: "complete a mission", usage: "<user> <mission>", nargs: 2, catalog: true, run: cmdComplete},
		"unlock":          {help: "request a module unlock", usage: "<user> <module>", nargs: 2, catalog: true, run: cmdUnlock},
		"complete-module": {help: "mark a module completed", usage: "<user> <module>", nargs: 2, catalog: true, run: cmdCompleteModule},
		"grant":           {help: "grant an achievement", usage: "<user> <achievement>", nargs: 2, catalog: true, run: cmdGrant},
		"sync":            {help: "open every module the user qualifies for", usage: "<user>", nargs: 1, catalog: true, run: cmdSync},

		"overview": {help: "progress overview", usage: "[-fresh] <user>", catalog: true, run: cmdOverview},
		"module":   {help: "one module's progress", usage: "<user> <module>", nargs: 2, catalog: true, run: cmdModule},
		"missions": {help: "missions visible to the user", usage: "<user>", nargs: 1, catalog: true, run: cmdMissions},

		"watch":  {help: "print events mirrored to Redis", run: cmdWatch},
		"script": {help: "run one command per line", usage: "<file|->", nargs: 1, catalog: true, run: cmdScript},
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// dispatch runs args[0] with the remaining arguments.
func (a *app) dispatch(ctx context.Context, args []string) error {
	spec, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	rest := args[1:]
	if len(rest) < spec.nargs {
		return fmt.Errorf("%w: %s %s", errUsage, args[0], spec.usage)
	}

	log := a.log.With(logger.Operation(args[0]))
	ctx = logger.WithContext(ctx, log)
	return spec.run(ctx, a, rest)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA AND CATALOGUE
// ══════════════════════════════════════════════════════════════════════════════

func (a *app) migrator() (*postgres.Migrator, error) {
	if a.conn == nil {
		return nil, fmt.Errorf("%w: migrations need STORE_DRIVER=%s", errUsage, config.DriverPostgres)
	}
	return postgres.NewMigrator(a.conn), nil
}

func cmdMigrate(ctx context.Context, a *app, _ []string) error {
	m, err := a.migrator()
	if err != nil {
		return err
	}
	n, err := m.Migrate(ctx)
	if err != nil {
		return err
	}
	return a.print(map[string]int{"applied": n})
}

func cmdRollback(ctx context.Context, a *app, _ []string) error {
	m, err := a.migrator()
	if err != nil {
		return err
	}
	v, err := m.Rollback(ctx)
	if err != nil {
		return err
	}
	return a.print(map[string]int{"rolled_back": v})
}

func cmdMigrations(ctx context.Context, a *app, _ []string) error {
	m, err := a.migrator()
	if err != nil {
		return err
	}
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	type row struct {
		Version   int    `json:"version"`
		Name      string `json:"name"`
		Applied   bool   `json:"applied"`
		AppliedAt string `json:"applied_at,omitempty"`
	}
	rows := make([]row, 0, len(status))
	for _, s := range status {
		r := row{Version: s.Version, Name: s.Name, Applied: s.IsApplied}
		if s.IsApplied {
			r.AppliedAt = s.AppliedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		rows = append(rows, r)
	}
	return a.print(rows)
}

func cmdSeed(ctx context.Context, a *app, _ []string) error {
	res, err := catalog.Seed(ctx, a.store, a.catalog)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("catalogue seeded",
		logger.String("path", a.cfg.Catalog.Path),
		logger.Int("modules", res.Modules),
		logger.Int("missions", res.Missions),
		logger.Int("achievements", res.Achievements),
	)
	return a.print(res)
}

func cmdTitles(_ context.Context, a *app, _ []string) error {
	levels := make([]int, 0, len(a.catalog.Titles))
	for l := range a.catalog.Titles {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	type row struct {
		Level int    `json:"level"`
		Title string `json:"title"`
	}
	rows := make([]row, 0, len(levels))
	for _, l := range levels {
		rows = append(rows, row{Level: l, Title: a.titles.Title(l)})
	}
	return a.print(rows)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITES
// ══════════════════════════════════════════════════════════════════════════════

func cmdRegister(ctx context.Context, a *app, args []string) error {
	res, err := command.NewRegisterUserHandler(a.commands).Handle(ctx, command.RegisterUserCommand{UserID: args[0]})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdDeleteUser(ctx context.Context, a *app, args []string) error {
	if err := command.NewDeleteUserHandler(a.commands).Handle(ctx, command.DeleteUserCommand{UserID: args[0]}); err != nil {
		return err
	}
	return a.print(map[string]string{"deleted": args[0]})
}

func cmdDeclare(ctx context.Context, a *app, args []string) error {
	res, err := command.NewCreateDeclarationHandler(a.commands).Handle(ctx, command.CreateDeclarationCommand{
		UserID:   args[0],
		ModuleID: args[1],
		Pillar:   args[2],
		Text:     strings.Join(args[3:], " "),
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdComplete(ctx context.Context, a *app, args []string) error {
	res, err := command.NewCompleteMissionHandler(a.commands).Handle(ctx, command.CompleteMissionCommand{
		UserID:    args[0],
		MissionID: args[1],
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdUnlock(ctx context.Context, a *app, args []string) error {
	res, err := command.NewUnlockModuleHandler(a.commands).Handle(ctx, command.UnlockModuleCommand{
		UserID:   args[0],
		ModuleID: args[1],
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdCompleteModule(ctx context.Context, a *app, args []string) error {
	res, err := command.NewCompleteModuleHandler(a.commands).Handle(ctx, command.CompleteModuleCommand{
		UserID:   args[0],
		ModuleID: args[1],
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdGrant(ctx context.Context, a *app, args []string) error {
	res, err := command.NewGrantAchievementHandler(a.commands).Handle(ctx, command.GrantAchievementCommand{
		UserID:        args[0],
		AchievementID: args[1],
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdSync(ctx context.Context, a *app, args []string) error {
	res, err := command.NewSyncUnlocksHandler(a.commands).Handle(ctx, command.SyncUnlocksCommand{UserID: args[0]})
	if err != nil {
		return err
	}
	return a.print(res)
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

func cmdOverview(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("overview", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fresh := fs.Bool("fresh", false, "bypass the overview cache")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: overview [-fresh] <user>", errUsage)
	}

	res, err := query.NewGetProgressOverviewHandler(a.queries, a.overviewCache()).Handle(ctx, query.GetProgressOverviewQuery{
		UserID:    fs.Arg(0),
		SkipCache: *fresh,
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdModule(ctx context.Context, a *app, args []string) error {
	res, err := query.NewGetModuleProgressHandler(a.queries).Handle(ctx, query.GetModuleProgressQuery{
		UserID:   args[0],
		ModuleID: args[1],
	})
	if err != nil {
		return err
	}
	return a.print(res)
}

func cmdMissions(ctx context.Context, a *app, args []string) error {
	res, err := query.NewListUserMissionsHandler(a.queries).Handle(ctx, query.ListUserMissionsQuery{UserID: args[0]})
	if err != nil {
		return err
	}
	return a.print(res)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS AND SCRIPTS
// ══════════════════════════════════════════════════════════════════════════════

func cmdWatch(ctx context.Context, a *app, _ []string) error {
	if a.forwarder == nil {
		return fmt.Errorf("%w: watch needs REDIS_ENABLED=true", errUsage)
	}
	logger.FromContext(ctx).Info("watching events", logger.String("channel", a.forwarder.Channel()))
	return a.forwarder.Listen(ctx, func(env shared.EventEnvelope) {
		if err := a.print(env); err != nil {
			logger.FromContext(ctx).Warn("print failed", logger.Err(err))
		}
	})
}

// cmdScript runs one subcommand per line and stops at the first failure.
// Blank lines and lines starting with # are skipped.
func cmdScript(ctx context.Context, a *app, args []string) error {
	var r io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		r = f
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		switch fields[0] {
		case "script", "watch":
			return fmt.Errorf("%w: line %d: %s cannot run inside a script", errUsage, line, fields[0])
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.dispatch(ctx, fields); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}
