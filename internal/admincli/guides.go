package admincli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ruianderson/sts-proxy/pkg/config"
	"github.com/ruianderson/sts-proxy/pkg/guides"
)

type sourceOptions struct {
	cfgPath    string
	guidesPath string
}

func (o *sourceOptions) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&o.cfgPath, "config", "c", "", "config yaml path")
	fs.StringVar(&o.guidesPath, "guides", "", "guides yaml path (overrides config guides.file)")
}

// loadConfig returns the config at cfgPath, or defaults when none is given.
func (o *sourceOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(strings.TrimSpace(o.cfgPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if p := strings.TrimSpace(o.guidesPath); p != "" {
		cfg.Guides.File = p
	}
	return cfg, nil
}

func (o *sourceOptions) loadGuides(strict bool) (*guides.Registry, string, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, "", err
	}
	return o.guidesFor(cfg, strict)
}

// guidesFor resolves the registry named by cfg. With strict set, or when
// --guides names a file, the file must exist; otherwise a missing file falls
// back to the built-in guides as the server does.
func (o *sourceOptions) guidesFor(cfg *config.Config, strict bool) (*guides.Registry, string, error) {
	src := strings.TrimSpace(cfg.Guides.File)
	if src == "" {
		return guides.Builtin(), "<builtin>", nil
	}
	if !strict && strings.TrimSpace(o.guidesPath) == "" {
		reg, err := guides.LoadOrBuiltin(src)
		return reg, src, err
	}
	reg, err := guides.Load(src)
	if err != nil {
		return nil, "", fmt.Errorf("load guides file %q: %w", src, err)
	}
	return reg, src, nil
}

func newGuidesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guides",
		Short: "List, show and validate action guides",
	}
	cmd.AddCommand(newGuidesListCmd(), newGuidesShowCmd(), newGuidesValidateCmd())
	return cmd
}

func newGuidesListCmd() *cobra.Command {
	var opts sourceOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := opts.loadGuides(false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range reg.Actions() {
				g, _ := reg.Lookup(a)
				if _, err := fmt.Fprintf(out, "%s\tinput=%d output=%d protocol=%d\n", a, len(g.Input), len(g.Output), g.Protocol.Len()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func newGuidesShowCmd() *cobra.Command {
	var opts sourceOptions
	cmd := &cobra.Command{
		Use:   "show <action>",
		Short: "Print one guide as yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := opts.loadGuides(false)
			if err != nil {
				return err
			}
			g, err := reg.Lookup(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]*guides.Guide{g.Action: g}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	opts.bind(cmd)
	return cmd
}

func newGuidesValidateCmd() *cobra.Command {
	var opts sourceOptions
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the guides file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, src, err := opts.loadGuides(true)
			if err != nil {
				var gi *guides.GuideIssue
				if errors.As(err, &gi) {
					return fmt.Errorf("guides invalid: %w", err)
				}
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%d actions)\n", src, reg.Len())
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}
