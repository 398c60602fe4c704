package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/coerce"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
)

// defaultConfigPath is used when neither --config nor HOMECORE_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "homecore",
		Short: "Home automation core",
		Long: `homecore drives devices over MQTT, evaluates automation rules on a
fixed tick and persists the entity graph to SQLite.

Running without a subcommand is the same as "homecore run".`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.ConfigPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", configPathFromEnv(),
		"path to the YAML configuration file (env HOMECORE_CONFIG)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newVocabCommand())
	cmd.AddCommand(newImportCommand(opts))

	return cmd
}

func configPathFromEnv() string {
	if path := os.Getenv("HOMECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the core until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.ConfigPath)
		},
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: site %q, timezone %s, database %s\n",
				cfg.Site.ID, cfg.TimeLocation(), cfg.Database.Path)
			return nil
		},
	}
}

// vocabulary lists every closed set a rule editor offers.
type vocabulary struct {
	EventTypes    []string `json:"event_types"`
	Conditions    []string `json:"conditions"`
	TriggerKinds  []string `json:"trigger_kinds"`
	ExecutorKinds []string `json:"executor_kinds"`
	DeviceKinds   []string `json:"device_kinds"`
	Enums         []string `json:"enums"`
	// Targets is only filled when a graph file is given.
	Targets []targetInfo `json:"targets,omitempty"`
}

// targetInfo lists what Call and Set executors may name on one target.
type targetInfo struct {
	Name       string         `json:"name"`
	Methods    []string       `json:"methods"`
	Properties map[string]any `json:"properties"`
}

func currentVocabulary() vocabulary {
	return vocabulary{
		EventTypes:    lo.Map(eventbus.EventTypes(), func(t eventbus.EventType, _ int) string { return t.String() }),
		Conditions:    lo.Map(automation.Conditions(), func(c automation.Condition, _ int) string { return c.String() }),
		TriggerKinds:  automation.TriggerKinds(),
		ExecutorKinds: automation.ExecutorKinds(),
		DeviceKinds:   device.Kinds(),
		Enums:         sortedEnums(),
	}
}

func sortedEnums() []string {
	names := coerce.Default.Enums()
	slices.Sort(names)
	return names
}

// describeTargets loads rooms into an offline registry and lists every
// room and device with its members and current property values.
func describeTargets(rooms []device.RoomSpec) ([]targetInfo, error) {
	reg := device.NewRegistry(&device.Env{Transport: offlineTransport{}})
	defer reg.Close()
	if err := reg.Load(rooms); err != nil {
		return nil, err
	}

	var targets []device.Target
	for _, room := range reg.Rooms() {
		targets = append(targets, room)
		targets = append(targets, lo.Map(room.Devices(), func(d device.Device, _ int) device.Target { return d })...)
	}
	return lo.Map(targets, func(t device.Target, _ int) targetInfo {
		caps := t.Capabilities()
		props := make(map[string]any)
		for _, name := range caps.PropertyNames() {
			if v, err := caps.Read(name); err == nil {
				props[name] = v
			}
		}
		return targetInfo{Name: t.TargetName(), Methods: caps.MethodNames(), Properties: props}
	}), nil
}

// offlineTransport accepts subscriptions and drops publishes, so devices can
// be set up without a broker.
type offlineTransport struct{}

func (offlineTransport) Publish(string, []byte, byte, bool) error { return nil }

func (offlineTransport) Subscribe(string, byte, func(string, []byte) error) error { return nil }

func (offlineTransport) Unsubscribe(string) error { return nil }

func newVocabCommand() *cobra.Command {
	var graphPath string

	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print event, condition and kind vocabularies as JSON",
		Long: `Print the closed sets a rule editor offers as JSON.

With --graph, also list every room and device in an import file together
with the methods and properties executors can name on it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vocab := currentVocabulary()
			if graphPath != "" {
				g, err := readGraph(graphPath)
				if err != nil {
					return err
				}
				if vocab.Targets, err = describeTargets(g.Rooms); err != nil {
					return fmt.Errorf("loading rooms: %w", err)
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(vocab)
		},
	}

	cmd.Flags().StringVar(&graphPath, "graph", "", "import file whose targets to list")
	return cmd
}
