package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/mnemo/internal/engine"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/store"
)

func mnemoDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mnemo")
}

func newObserver() *observe.Observer {
	if jsonOutput {
		return observe.NewJSON(os.Stderr, verbose)
	}
	return observe.New(os.Stderr, verbose)
}

// openEngine builds the engine over the shared database. Flags override
// the config file, which overrides defaults.
func openEngine(obs *observe.Observer) *engine.Engine {
	cfg := engine.DefaultConfig()
	if configPath != "" {
		loaded, err := engine.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(mnemoDir(), "memory.db")
	}

	e, err := engine.New(cfg, obs)
	if err != nil {
		fmt.Printf("Failed to init engine: %v\n", err)
		os.Exit(1)
	}
	return e
}

func getStore() store.Storage {
	path := dbPath
	if path == "" {
		path = filepath.Join(mnemoDir(), "memory.db")
	}
	storeLayer, err := store.NewSQLiteStore(path)
	if err != nil {
		fmt.Printf("Failed to init store: %v\n", err)
		os.Exit(1)
	}
	return storeLayer
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
