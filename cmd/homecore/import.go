package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"github.com/spf13/cobra"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
)

// graph is the import file format: the room/device tree plus the actions
// that drive it.
//
//	{
//	  "rooms":   [{"name": "Kitchen", "devices": [{"type": "switch", "spec": {...}}]}],
//	  "actions": [{"name": "Morning", "enabled": true, "trigger": {...}, "executor": {...}}]
//	}
type graph struct {
	Rooms   []device.RoomSpec    `json:"rooms"`
	Actions []*automation.Action `json:"actions"`
}

// importResult summarises what an import stored.
type importResult struct {
	Rooms   int
	Devices int
	Actions int
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a JSON entity graph in the database",
		Long: `Read rooms, devices and actions from a JSON file and store them.

The room/device tree replaces what is stored. Actions are inserted or
replaced by name. Run it while homecore is stopped; a running core
overwrites the tree on its next snapshot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(args[0])
			if err != nil {
				return err
			}
			if err := validateGraph(g); err != nil {
				return err
			}
			res := summarise(g)
			if !dryRun {
				cfg, err := config.Load(opts.ConfigPath)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				if err := importGraph(cmd.Context(), cfg.Database, g); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rooms, %d devices, %d actions", res.Rooms, res.Devices, res.Actions)
			if dryRun {
				fmt.Fprint(cmd.OutOrStdout(), " (dry run)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}

func readGraph(path string) (*graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening graph: %w", err)
	}
	defer f.Close()
	return decodeGraph(f)
}

func decodeGraph(r io.Reader) (*graph, error) {
	var g graph
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	return &g, nil
}

// validateGraph checks names are unique per scope and every action is complete.
func validateGraph(g *graph) error {
	var errs []error

	rooms := make(map[string]bool, len(g.Rooms))
	for _, room := range g.Rooms {
		if strings.TrimSpace(room.Name) == "" || strings.ContainsAny(room.Name, ".()") {
			errs = append(errs, fmt.Errorf("%w: room %q", device.ErrInvalidName, room.Name))
		}
		if rooms[room.Name] {
			errs = append(errs, fmt.Errorf("%w: %s", device.ErrRoomExists, room.Name))
		}
		rooms[room.Name] = true

		names := make(map[string]bool, len(room.Devices))
		for _, env := range room.Devices {
			name := env.Device.Common().Name
			if names[name] {
				errs = append(errs, fmt.Errorf("%w: %s.%s", device.ErrDeviceExists, room.Name, name))
			}
			names[name] = true
		}
	}

	actions := make(map[string]bool, len(g.Actions))
	slugs := make(map[string]string, len(g.Actions))
	for _, a := range g.Actions {
		if a.Slug == "" {
			a.Slug = slug.Make(a.Name)
		}
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("action %q: %w", a.Name, err))
			continue
		}
		if actions[a.Name] {
			errs = append(errs, fmt.Errorf("%w: %s", automation.ErrActionExists, a.Name))
		}
		if other, ok := slugs[a.Slug]; ok && other != a.Name {
			errs = append(errs, fmt.Errorf("%w: slug %s is used by %s", automation.ErrActionExists, a.Slug, other))
		}
		actions[a.Name] = true
		slugs[a.Slug] = a.Name
	}

	return errors.Join(errs...)
}

func summarise(g *graph) importResult {
	res := importResult{Rooms: len(g.Rooms), Actions: len(g.Actions)}
	for _, room := range g.Rooms {
		res.Devices += len(room.Devices)
	}
	return res
}

// importGraph writes a validated graph. Rooms are replaced in one
// transaction; actions are upserted one by one.
func importGraph(ctx context.Context, cfg config.DatabaseConfig, g *graph) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := device.NewSQLiteRepository(db.DB).SaveRooms(ctx, g.Rooms); err != nil {
		return fmt.Errorf("storing rooms: %w", err)
	}

	repo := automation.NewSQLiteRepository(db.DB)
	for _, a := range g.Actions {
		if err := repo.Save(ctx, a); err != nil {
			return fmt.Errorf("storing action %s: %w", a.Name, err)
		}
	}
	return nil
}
