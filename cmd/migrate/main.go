package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/ManuelReschke/MeliDesk/internal/pkg/env"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrator is the part of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Migrate(version uint) error
	Force(version int) error
	Version() (uint, bool, error)
}

var errUsage = errors.New("usage")

func main() {
	// Lade Umgebungsvariablen aus .env-Datei
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	log.Printf("Verbinde mit Datenbank: %s@%s:%s/%s",
		env.GetEnv("DB_USER", "melidesk"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "melidesk_db"),
	)

	m, err := migrate.New("file://"+env.GetEnv("MIGRATIONS_PATH", "migrations"), databaseURL())
	if err != nil {
		log.Fatalf("Fehler beim Initialisieren der Migration: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Fehler beim Schließen der Migrationsressourcen: %v, %v", sourceErr, dbErr)
		}
	}()

	if err := run(m, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stdout)
		}
		log.Printf("Migration fehlgeschlagen: %v", err)
		os.Exit(1)
	}
}

func databaseURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", "melidesk"),
		env.GetEnv("DB_PASSWORD", "melidesk"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "melidesk_db"),
	)
}

// run executes one command against m and reports the result on out.
func run(m migrator, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintln(out, "Keine Änderungen: Datenbank ist bereits auf dem neuesten Stand")
			return nil
		}
		if err != nil {
			return fmt.Errorf("up: %w", err)
		}
		fmt.Fprintln(out, "Migrationen erfolgreich ausgeführt")

	case "down":
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("down: %w", err)
		}
		fmt.Fprintln(out, "Letzte Migration erfolgreich zurückgerollt")

	case "goto":
		version, err := versionArg(args)
		if err != nil {
			return err
		}
		err = m.Migrate(uint(version))
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(out, "Keine Änderungen: Datenbank ist bereits auf Version %d\n", version)
			return nil
		}
		if err != nil {
			return fmt.Errorf("goto %d: %w", version, err)
		}
		fmt.Fprintf(out, "Migration zur Version %d erfolgreich\n", version)

	case "force":
		// setzt die Version ohne Migrationen auszuführen, z.B. nach einem dirty state
		version, err := versionArg(args)
		if err != nil {
			return err
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force %d: %w", version, err)
		}
		fmt.Fprintf(out, "Version %d gesetzt\n", version)

	case "status", "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(out, "Keine Migrationen wurden bisher ausgeführt")
			return nil
		}
		if err != nil {
			return fmt.Errorf("version: %w", err)
		}
		suffix := ""
		if dirty {
			suffix = " (dirty)"
		}
		fmt.Fprintf(out, "Aktuelle Migrationsversion: %d%s\n", version, suffix)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return nil
}

func versionArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%w: %s needs a version number", errUsage, args[0])
	}
	version, err := strconv.Atoi(args[1])
	if err != nil || version < 0 {
		return 0, fmt.Errorf("%w: invalid version %q", errUsage, args[1])
	}
	return version, nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Verwendung: go run cmd/migrate/main.go [command]")
	fmt.Fprintln(out, "Verfügbare Befehle:")
	fmt.Fprintln(out, "  up      - Führe alle ausstehenden Migrationen aus")
	fmt.Fprintln(out, "  down    - Rolle die letzte Migration zurück")
	fmt.Fprintln(out, "  goto N  - Migriere zur Version N")
	fmt.Fprintln(out, "  force N - Setze die Version N ohne Migrationen auszuführen")
	fmt.Fprintln(out, "  status  - Zeige aktuelle Migrationsversion an (alias: version)")
}
