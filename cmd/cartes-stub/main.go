// Command cartes-stub serves an in-memory cartes backend for local development.
//
// Without --seed it starts with four demo operators (password "demo") and a
// handful of cartes. A seed file is YAML:
//
//	accounts:
//	  - username: awa
//	    password: secret
//	    role: Administrateur
//	    fullName: Awa Kone
//	cartes:
//	  - NOM: KOFFI
//	    PRENOMS: Jean
//	    SITE DE RETRAIT: Cocody
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/goCartes/internal/stubapi"
	"github.com/MrEthical07/goCartes/internal/telemetry"
	"github.com/MrEthical07/goCartes/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"sigs.k8s.io/yaml"
)

type seedAccount struct {
	Username string       `json:"username"`
	Password string       `json:"password"`
	Role     session.Role `json:"role"`
	FullName string       `json:"fullName"`
	Email    string       `json:"email"`
	Agency   string       `json:"agency"`
	Disabled bool         `json:"disabled"`
}

type seedFile struct {
	Accounts []seedAccount    `json:"accounts"`
	Cartes   []map[string]any `json:"cartes"`
}

func main() {
	var (
		addr         = flag.String("addr", ":3000", "listen address")
		seedPath     = flag.String("seed", "", "YAML file with accounts and cartes")
		tokenTTL     = flag.Duration("token-ttl", time.Hour, "lifetime of issued tokens")
		otlpEndpoint = flag.String("otlp-endpoint", "", "OTLP gRPC collector for server spans")
		debug        = flag.Bool("debug", false, "log every request")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Str("component", "cartes-stub").Logger()

	if err := run(*addr, *seedPath, *tokenTTL, *otlpEndpoint, logger); err != nil {
		logger.Error().Err(err).Msg("stopped")
		os.Exit(1)
	}
}

func run(addr, seedPath string, ttl time.Duration, otlpEndpoint string, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := demoSeed()
	if seedPath != "" {
		loaded, err := loadSeed(seedPath)
		if err != nil {
			return err
		}
		seed = loaded
	}

	srv, err := stubapi.New(stubapi.Config{
		Accounts: seed.accounts(),
		Cartes:   seed.Cartes,
		TokenTTL: ttl,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "cartes-stub",
		Endpoint:    otlpEndpoint,
		Insecure:    true,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	var handler http.Handler = srv
	if otlpEndpoint != "" {
		handler = otelhttp.NewHandler(srv, "cartes-stub")
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Int("accounts", len(seed.Accounts)).Int("cartes", srv.Count()).Msg("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info().Msg("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

func loadSeed(path string) (seedFile, error) {
	var seed seedFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return seed, fmt.Errorf("%s: %w", path, err)
	}
	if len(seed.Accounts) == 0 {
		return seed, fmt.Errorf("%s: no accounts", path)
	}
	return seed, nil
}

func (s seedFile) accounts() []stubapi.Account {
	out := make([]stubapi.Account, 0, len(s.Accounts))
	for i, a := range s.Accounts {
		out = append(out, stubapi.Account{
			Password: a.Password,
			Disabled: a.Disabled,
			User: session.User{
				ID:       i + 1,
				FullName: a.FullName,
				Username: a.Username,
				Email:    a.Email,
				Agency:   a.Agency,
				Role:     a.Role,
			},
		})
	}
	return out
}

func demoSeed() seedFile {
	return seedFile{
		Accounts: []seedAccount{
			{Username: "admin", Password: "demo", Role: session.RoleAdministrator, FullName: "Administrateur démo", Agency: "Siège"},
			{Username: "superviseur", Password: "demo", Role: session.RoleSupervisor, FullName: "Superviseur démo", Agency: "Cocody"},
			{Username: "chef", Password: "demo", Role: session.RoleChief, FullName: "Chef d'équipe démo", Agency: "Cocody"},
			{Username: "operateur", Password: "demo", Role: session.RoleOperator, FullName: "Opérateur démo", Agency: "Yopougon"},
		},
		Cartes: []map[string]any{
			{"LIEU D'ENROLEMENT": "Mairie", "SITE DE RETRAIT": "Cocody", "RANGEMENT": "A1", "NOM": "KOFFI", "PRENOMS": "Jean", "DATE DE NAISSANCE": "1990-02-14", "LIEU NAISSANCE": "Abidjan", "CONTACT": "0700000001"},
			{"LIEU D'ENROLEMENT": "Mairie", "SITE DE RETRAIT": "Cocody", "RANGEMENT": "A2", "NOM": "DIALLO", "PRENOMS": "Awa", "DELIVRANCE": "OUI", "DATE DE DELIVRANCE": "2024-05-02"},
			{"LIEU D'ENROLEMENT": "Préfecture", "SITE DE RETRAIT": "Yopougon", "RANGEMENT": "B7", "NOM": "TRAORE", "PRENOMS": "Moussa", "CONTACT": "0500000003"},
			{"LIEU D'ENROLEMENT": "Préfecture", "SITE DE RETRAIT": "Yopougon", "RANGEMENT": "B8", "NOM": "KONE", "PRENOMS": "Fatou"},
		},
	}
}
