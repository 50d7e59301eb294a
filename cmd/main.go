// File: main.go

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"server-catalog/pkg/api"
	"server-catalog/pkg/catalog"
	"server-catalog/pkg/config"
	"server-catalog/pkg/database"
	"server-catalog/pkg/fetch"
	"server-catalog/pkg/filter"
	"server-catalog/pkg/locale"
	"server-catalog/pkg/metrics"
	"server-catalog/pkg/models"
	"server-catalog/pkg/order"
	"server-catalog/pkg/query"
	"server-catalog/pkg/refresh"
	"server-catalog/pkg/selector"
	"server-catalog/pkg/upstream"
)

var (
	debugFlag  bool
	configFile string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "server-catalog",
	Short: "Keeps a local VPN server catalog and picks servers from it",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the server list and loads from the API and apply them",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		skipLoads, _ := cmd.Flags().GetBool("skip-loads")

		app := newApp()
		defer app.Close()

		source, err := app.httpSource(cmd.Context())
		if err != nil {
			logger.Error("Error creating upstream client", "error", err)
			os.Exit(1)
		}
		report, err := app.refreshService(source, force, skipLoads).Run(cmd.Context())
		if err != nil {
			logger.Error("Refresh failed", "error", err)
			os.Exit(1)
		}
		logReport(report)
	},
}

var updateLoadsCmd = &cobra.Command{
	Use:   "update-loads",
	Short: "Fetch and apply server loads only",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		defer app.Close()

		source, err := app.httpSource(cmd.Context())
		if err != nil {
			logger.Error("Error creating upstream client", "error", err)
			os.Exit(1)
		}
		report, err := app.refreshService(source, false, false).UpdateLoads(cmd.Context())
		if err != nil {
			logger.Error("Loads update failed", "error", err)
			os.Exit(1)
		}
		logReport(report)
	},
}

var importCmd = &cobra.Command{
	Use:   "import [logicals.json] [loads.json]",
	Short: "Replace the catalog with a server list saved to disk",
	Long: `Import a server list in the API's logicals format.
[logicals.json] is a /vpn/logicals response body
[loads.json] is an optional /vpn/loads response body`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		source := upstream.FileSource{LogicalsPath: args[0]}
		if len(args) > 1 {
			source.LoadsPath = args[1]
		}

		app := newApp()
		defer app.Close()

		report, err := app.refreshService(source, true, source.LoadsPath == "").Run(cmd.Context())
		if err != nil {
			logger.Error("Import failed", "error", err)
			os.Exit(1)
		}
		logReport(report)
	},
}

var selectCmd = &cobra.Command{
	Use:     "select",
	Short:   "Pick a server for a connection intent",
	Example: "select --intent country_fastest --country CH --protocol wireguard_udp",
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		intentName, _ := flags.GetString("intent")
		country, _ := flags.GetString("country")
		serverID, _ := flags.GetString("server")
		city, _ := flags.GetString("city")
		serverTypeName, _ := flags.GetString("server-type")

		intent, err := selector.ParseIntent(intentName, strings.ToUpper(country), serverID, city)
		if err != nil {
			logger.Error("Invalid intent", "error", err)
			os.Exit(1)
		}
		serverType, err := selector.ParseServerType(serverTypeName)
		if err != nil {
			logger.Error("Invalid server type", "error", err)
			os.Exit(1)
		}

		app := newApp()
		defer app.Close()

		env, err := app.cfg.Selection.Environment()
		if err != nil {
			logger.Error("Invalid selection settings", "error", err)
			os.Exit(1)
		}
		if flags.Changed("tier") {
			env.UserTier, _ = flags.GetInt("tier")
		}
		if flags.Changed("protocol") {
			name, _ := flags.GetString("protocol")
			if env.Protocol, err = selector.ParseConnectionProtocol(name); err != nil {
				logger.Error("Invalid protocol", "error", err)
				os.Exit(1)
			}
		}

		sel := selector.New(app.engine(),
			selector.WithLogger(logger),
			selector.WithUnavailableHandler(func(u selector.Unavailable) {
				logger.Info("No server available",
					"reason", u.Reason,
					"serverType", u.ServerType,
					"specificCountry", u.ForSpecificCountry)
			}),
			selector.WithServerTypeChangedHandler(func(t selector.ServerType) {
				logger.Debug("Server type resolved", "serverType", t)
			}))

		result, err := sel.SelectServer(cmd.Context(), selector.ConnectionRequest{ServerType: serverType, Intent: intent}, env)
		if err != nil {
			logger.Error("Selection failed", "error", err)
			os.Exit(1)
		}
		if result.Server == nil {
			fmt.Println(result.Outcome())
			os.Exit(2)
		}
		printJSON(api.NewServerView(result.Server))
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List country and gateway groups",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		defer app.Close()

		filters, err := listFilters(cmd, app.loc)
		if err != nil {
			logger.Error("Invalid filter", "error", err)
			os.Exit(1)
		}

		groups, err := app.engine().GetGroups(cmd.Context(), filters)
		if err != nil {
			logger.Error("Error listing groups", "error", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tGATEWAY\tCOUNTRY\tNAME\tSERVERS\tCITIES\tTIERS\tMAINTENANCE")
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d-%d\t%t\n",
				g.Kind, g.GatewayName, g.CountryCode, g.CountryName,
				g.ServerCount, g.CityCount, g.MinTier, g.MaxTier, g.IsUnderMaintenance)
		}
		w.Flush()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List servers matching the filters",
	Run: func(cmd *cobra.Command, args []string) {
		orderName, _ := cmd.Flags().GetString("order")
		o, err := order.Parse(orderName)
		if err != nil {
			logger.Error("Invalid order", "error", err)
			os.Exit(1)
		}

		app := newApp()
		defer app.Close()

		filters, err := listFilters(cmd, app.loc)
		if err != nil {
			logger.Error("Invalid filter", "error", err)
			os.Exit(1)
		}

		infos, err := app.engine().GetServers(cmd.Context(), filters, o)
		if err != nil {
			logger.Error("Error listing servers", "error", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEXIT\tCITY\tTIER\tLOAD\tSCORE\tSTATUS\tPROTOCOLS")
		for _, info := range infos {
			s := info.Server
			city := ""
			if s.City != nil {
				city = *s.City
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.3f\t%d\t%s\n",
				s.ID, s.Name, s.ExitCountryCode, city, s.Tier,
				s.Dynamic.Load, s.Dynamic.Score, s.Dynamic.Status, info.Protocols)
		}
		w.Flush()
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of servers in the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		defer app.Close()

		n, err := app.store.Count(cmd.Context())
		if err != nil {
			logger.Error("Error counting servers", "error", err)
			os.Exit(1)
		}
		fmt.Println(n)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP, refreshing it in the background",
	Run: func(cmd *cobra.Command, args []string) {
		refreshEvery, _ := cmd.Flags().GetDuration("refresh-interval")
		loadsEvery, _ := cmd.Flags().GetDuration("loads-interval")
		reloadEvery, _ := cmd.Flags().GetDuration("reload-interval")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app := newApp()
		defer app.Close()

		env, err := app.cfg.Selection.Environment()
		if err != nil {
			logger.Error("Invalid selection settings", "error", err)
			os.Exit(1)
		}

		if refreshEvery > 0 || loadsEvery > 0 {
			source, err := app.httpSource(ctx)
			if err != nil {
				logger.Error("Error creating upstream client", "error", err)
				os.Exit(1)
			}
			svc := app.refreshService(source, false, false)
			go schedule(ctx, refreshEvery, "refresh", svc.Run)
			go schedule(ctx, loadsEvery, "update-loads", svc.UpdateLoads)
		}
		go reloadOnChange(ctx, app.store, reloadEvery)

		engine := app.engine()
		sel := selector.New(engine, selector.WithLogger(logger))
		server := api.NewServer(engine, sel, env, app.metrics, logger)
		if err := server.ListenAndServe(ctx, app.cfg.API.Listen); err != nil {
			logger.Error("Server stopped", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: config.yaml in ., $HOME/.server-catalog or /etc/server-catalog)")

	refreshCmd.Flags().Bool("force", false, "Ignore the stored Last-Modified cursor")
	refreshCmd.Flags().Bool("skip-loads", false, "Do not fetch server loads")

	selectCmd.Flags().String("intent", "fastest", "fastest, random, country_fastest, country_random, server or city")
	selectCmd.Flags().String("country", "", "Two-letter exit country code")
	selectCmd.Flags().String("server", "", "Logical server id for the server intent")
	selectCmd.Flags().String("city", "", "City name for the city intent")
	selectCmd.Flags().String("server-type", "", "standard or secure_core (default from config)")
	selectCmd.Flags().Int("tier", 0, "User tier (default from config)")
	selectCmd.Flags().String("protocol", "", "smart or a protocol name (default from config)")

	for _, c := range []*cobra.Command{groupsCmd, listCmd} {
		c.Flags().String("country", "", "Exit country code, or 'any' for all countries")
		c.Flags().String("gateway", "", "Gateway name, or 'any' for all gateways")
		c.Flags().String("search", "", "Free-text search over countries, cities and gateways")
		c.Flags().Int("tier", -1, "Maximum server tier")
		c.Flags().String("protocol", "", "Only servers accepting this protocol")
		c.Flags().String("features", "", "Required features, comma separated")
		c.Flags().Bool("online", false, "Skip servers under maintenance")
	}
	listCmd.Flags().String("order", "name", "none, random, fastest or name")

	serveCmd.Flags().Duration("refresh-interval", 0, "Full refresh period (0 disables)")
	serveCmd.Flags().Duration("loads-interval", 0, "Loads update period (0 disables)")
	serveCmd.Flags().Duration("reload-interval", time.Minute, "Period for re-reading the database written by other commands (0 disables, SIGHUP always reloads)")

	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(updateLoadsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	config.Init(viper.GetViper(), configFile)
	if err := config.Read(viper.GetViper()); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every catalog command needs.
type app struct {
	cfg     *config.Config
	db      *database.DB
	store   *catalog.Store
	metrics *metrics.Metrics
	loc     *locale.Localizer
}

func newApp() *app {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	loc, err := locale.Parse(cfg.Locale)
	if err != nil {
		logger.Error("Invalid locale", "error", err)
		os.Exit(1)
	}
	db, err := initDB(cfg.Database)
	if err != nil {
		logger.Error("Error initializing database", "error", err)
		os.Exit(1)
	}
	m := metrics.New()
	return &app{
		cfg:     cfg,
		db:      db,
		store:   catalog.NewStore(db, logger, catalog.WithChangeHook(m.SetCatalogSize)),
		metrics: m,
		loc:     loc,
	}
}

func (a *app) Close() {
	a.db.Close()
}

func (a *app) engine() *query.Engine {
	return query.NewEngine(a.store, a.loc, query.WithLogger(logger))
}

func (a *app) httpSource(ctx context.Context) (*upstream.HTTPSource, error) {
	opts, err := a.cfg.Upstream.FetchOptions(ctx, logger)
	if err != nil {
		return nil, err
	}
	client, err := fetch.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return upstream.NewHTTPSource(client, a.cfg.Upstream.BaseURL), nil
}

func (a *app) refreshService(source upstream.Source, force, skipLoads bool) *refresh.RefreshService {
	settings := refresh.Settings{
		MaxDeleteTier: a.cfg.Refresh.MaxDeleteTier,
		Force:         force,
		SkipLoads:     skipLoads,
	}
	return refresh.NewRefreshService(a.store, source, logger, settings,
		refresh.WithObserver(func(r refresh.Report, err error) {
			result := metrics.RefreshUpdated
			switch {
			case err != nil:
				result = metrics.RefreshFailed
			case r.NotModified:
				result = metrics.RefreshNotModified
			}
			a.metrics.ObserveRefresh(result, r.Duration)
		}))
}

func initDB(opts database.Options) (*database.DB, error) {
	db, err := database.NewDB(opts)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	err = db.InitSchema(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return db, nil
}

func listFilters(cmd *cobra.Command, loc *locale.Localizer) ([]filter.Filter, error) {
	flags := cmd.Flags()
	var filters []filter.Filter

	if v, _ := flags.GetString("country"); v != "" {
		if v == "any" {
			v = ""
		}
		filters = append(filters, filter.Country(strings.ToUpper(v)))
	}
	if v, _ := flags.GetString("gateway"); v != "" {
		if v == "any" {
			v = ""
		}
		filters = append(filters, filter.Gateway(v))
	}
	if v, _ := flags.GetString("search"); v != "" {
		filters = append(filters, filter.Matches(v, loc))
	}
	if v, _ := flags.GetInt("tier"); v >= 0 {
		filters = append(filters, filter.TierMax(v))
	}
	if v, _ := flags.GetString("protocol"); v != "" {
		p, err := models.ParseVpnProtocol(v)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter.ProtocolSupport(p.Mask()))
	}
	if v, _ := flags.GetString("features"); v != "" {
		required, err := models.ParseFeatures(v)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter.Features(required, models.NoFeatures))
	}
	if online, _ := flags.GetBool("online"); online {
		filters = append(filters, filter.NotUnderMaintenance())
	}
	return filters, nil
}

// schedule runs fn every period until ctx is done. A zero period disables it.
func schedule(ctx context.Context, period time.Duration, name string, fn func(context.Context) (refresh.Report, error)) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fn(ctx); err != nil {
				logger.Warn("Scheduled job failed", "job", name, "error", err)
			}
		}
	}
}

// reloadOnChange re-reads the catalog every period and on SIGHUP, so a
// running server picks up writes made by refresh, update-loads or import.
func reloadOnChange(ctx context.Context, store *catalog.Store, period time.Duration) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var tick <-chan time.Time
	if period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("Reloading catalog on SIGHUP")
		case <-tick:
		}
		if err := store.Reload(ctx); err != nil {
			logger.Warn("Catalog reload failed", "error", err)
		}
	}
}

func logReport(r refresh.Report) {
	logger.Info("Catalog updated",
		"runID", r.RunID,
		"notModified", r.NotModified,
		"upserted", r.Upserted,
		"deleted", r.Deleted,
		"loadsReceived", r.LoadsReceived,
		"loadsApplied", r.LoadsApplied,
		"duration", r.Duration)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error("Error writing output", "error", err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
