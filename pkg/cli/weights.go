package cli

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/mchmarny/triage/pkg/config"
	"github.com/mchmarny/triage/pkg/data"
	"github.com/mchmarny/triage/pkg/risk"
	"github.com/urfave/cli/v3"
)

const (
	weightsFileFlagName = "weights"
	profileFlagName     = "profile"
	setFlagName         = "set"
	descFlagName        = "description"
)

func weightFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    weightsFileFlagName,
			Aliases: []string{"w"},
			Usage:   "Path to a YAML file with condition weights",
		},
		&cli.StringFlag{
			Name:    profileFlagName,
			Aliases: []string{"p"},
			Usage:   "Name of a saved weight profile",
		},
		&cli.StringSliceFlag{
			Name:  setFlagName,
			Usage: "Override a condition weight, e.g. --set diabetes=7 (can be specified multiple times)",
		},
	}
}

func newWeightsCmd() *cli.Command {
	return &cli.Command{
		Name:            "weights",
		Aliases:         []string{"w"},
		Usage:           "Show and manage the condition risk weights",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective risk index (defaults plus overrides)",
				Action: cmdWeightsShow,
				Flags:  weightFlags(),
			},
			{
				Name:  "save",
				Usage: "Save the given overrides as a named profile",
				UsageText: `triage weights save --profile winter --set asthma=6 --set copd=8
   triage weights save --profile clinic --weights clinic.yaml`,
				Action: cmdWeightsSave,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     profileFlagName,
						Aliases:  []string{"p"},
						Usage:    "Profile name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  descFlagName,
						Usage: "Profile description",
					},
					&cli.StringFlag{
						Name:    weightsFileFlagName,
						Aliases: []string{"w"},
						Usage:   "Path to a YAML file with condition weights",
					},
					&cli.StringSliceFlag{
						Name:  setFlagName,
						Usage: "Condition weight, e.g. --set diabetes=7 (can be specified multiple times)",
					},
				},
			},
			{
				Name:   "list",
				Usage:  "List saved weight profiles",
				Action: cmdWeightsList,
			},
			{
				Name:   "delete",
				Usage:  "Delete a saved weight profile",
				Action: cmdWeightsDelete,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     profileFlagName,
						Aliases:  []string{"p"},
						Usage:    "Profile name",
						Required: true,
					},
				},
			},
		},
	}
}

// WeightItem is one row of the effective risk index.
type WeightItem struct {
	Condition string `json:"condition" yaml:"condition"`
	Label     string `json:"label" yaml:"label"`
	Weight    int    `json:"weight" yaml:"weight"`
}

func indexItems(idx *risk.Index) []*WeightItem {
	list := make([]*WeightItem, 0, idx.Len())
	for _, k := range idx.Conditions() {
		list = append(list, &WeightItem{
			Condition: k,
			Label:     risk.DisplayName(k),
			Weight:    idx.Weight(k),
		})
	}
	return list
}

// overrideLayers collects the operator overrides in precedence order:
// config file, weights file, saved profile, then --set flags.
func overrideLayers(db *sql.DB, conf *config.Config, weightsFile, profile string, set []string) ([]map[string]int, error) {
	layers := make([]map[string]int, 0, 4)
	if conf != nil && len(conf.Weights) > 0 {
		layers = append(layers, conf.Weights)
	}

	if weightsFile != "" {
		w, err := config.LoadWeights(weightsFile)
		if err != nil {
			return nil, err
		}
		layers = append(layers, w)
	}

	if profile != "" {
		p, err := data.GetProfile(db, profile)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
		slog.Debug("using weight profile", "name", p.Name, "conditions", len(p.Weights))
		layers = append(layers, p.Weights)
	}

	if len(set) > 0 {
		w, err := config.ParseOverrides(set)
		if err != nil {
			return nil, err
		}
		layers = append(layers, w)
	}

	return layers, nil
}

func buildIndex(layers []map[string]int) (*risk.Index, error) {
	m, err := risk.Merge(risk.DefaultWeights(), layers...)
	if err != nil {
		return nil, fmt.Errorf("building risk index: %w", err)
	}
	idx, err := risk.NewIndex(m)
	if err != nil {
		return nil, fmt.Errorf("building risk index: %w", err)
	}
	return idx, nil
}

func resolveIndex(cfg *appConfig, c *cli.Command) (*risk.Index, error) {
	layers, err := overrideLayers(cfg.DB, cfg.Config,
		c.String(weightsFileFlagName), c.String(profileFlagName), c.StringSlice(setFlagName))
	if err != nil {
		return nil, err
	}
	return buildIndex(layers)
}

func cmdWeightsShow(_ context.Context, c *cli.Command) error {
	cfg := getConfig(c)

	idx, err := resolveIndex(cfg, c)
	if err != nil {
		return err
	}

	w := getWriter(c)
	if cfg.Format == formatCSV {
		return writeWeightsCSV(w, idx)
	}

	if err := encode(w, cfg.Format, indexItems(idx)); err != nil {
		return fmt.Errorf("error encoding weights: %w", err)
	}
	return nil
}

func writeWeightsCSV(w io.Writer, idx *risk.Index) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"condition", "weight"}); err != nil {
		return fmt.Errorf("error writing weights: %w", err)
	}
	for _, k := range idx.Conditions() {
		if err := cw.Write([]string{k, strconv.Itoa(idx.Weight(k))}); err != nil {
			return fmt.Errorf("error writing weights: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cmdWeightsSave(_ context.Context, c *cli.Command) error {
	cfg := getConfig(c)

	layers, err := overrideLayers(cfg.DB, nil, c.String(weightsFileFlagName), "", c.StringSlice(setFlagName))
	if err != nil {
		return err
	}
	if len(layers) == 0 {
		return cli.ShowSubcommandHelp(c)
	}

	weights, err := risk.Merge(map[string]int{}, layers...)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	p := &data.Profile{
		Name:        c.String(profileFlagName),
		Description: c.String(descFlagName),
		Weights:     weights,
	}
	if err := data.SaveProfile(cfg.DB, p); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	slog.Info("profile saved", "name", p.Name, "conditions", len(p.Weights))

	if err := encode(getWriter(c), structuredFormat(cfg.Format), p); err != nil {
		return fmt.Errorf("error encoding profile: %w", err)
	}
	return nil
}

func cmdWeightsList(_ context.Context, c *cli.Command) error {
	cfg := getConfig(c)

	list, err := data.ListProfiles(cfg.DB)
	if err != nil {
		return fmt.Errorf("listing profiles: %w", err)
	}

	if err := encode(getWriter(c), structuredFormat(cfg.Format), list); err != nil {
		return fmt.Errorf("error encoding profiles: %w", err)
	}
	return nil
}

func cmdWeightsDelete(_ context.Context, c *cli.Command) error {
	cfg := getConfig(c)
	name := c.String(profileFlagName)

	if err := data.DeleteProfile(cfg.DB, name); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}

	slog.Info("profile deleted", "name", name)
	return nil
}

// structuredFormat maps csv to json for outputs that are not tables.
func structuredFormat(f string) string {
	if f == formatCSV {
		return formatJSON
	}
	return f
}
