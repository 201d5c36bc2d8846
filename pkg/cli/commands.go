package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/devicelab-dev/uiresolve/pkg/chain"
	"github.com/devicelab-dev/uiresolve/pkg/container"
	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/resolver"
	"github.com/devicelab-dev/uiresolve/pkg/scoring"
	"github.com/devicelab-dev/uiresolve/pkg/selector"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "Resolve a target description against a snapshot",
	ArgsUsage: "<snapshot.xml>",
	Description: `Resolve one target, given inline or in a YAML file, or a named list
of targets against the same snapshot.

A target is a map of fields (text, resource_id, content_desc, class, ...)
with optional match_mode, includes and excludes. A bare string is a text
target.

Examples:
  uiresolve resolve --target 'text: OK' screen.xml
  uiresolve resolve --target '{resource_id: com.app:id/save, class: Button}' screen.xml
  uiresolve resolve --target-file target.yaml screen.xml
  uiresolve resolve --targets-file targets.yaml --workers 4 screen.xml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "Target as inline YAML",
		},
		&cli.StringFlag{
			Name:  "target-file",
			Usage: "YAML file holding one target",
		},
		&cli.StringFlag{
			Name:  "targets-file",
			Usage: "YAML list of {name, target} entries resolved together",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Workers for --targets-file (0 uses the config value)",
		},
	},
	Action: runResolve,
}

var chainCommand = &cli.Command{
	Name:      "chain",
	Usage:     "Run a decision-chain plan against a snapshot",
	ArgsUsage: "<snapshot.xml> <plan.yaml>",
	Description: `Try the plan's variants in order until one resolves uniquely and
safely. Plan strategy settings override the configuration.

Examples:
  uiresolve chain screen.xml plan.yaml
  uiresolve chain --validate-only screen.xml plan.yaml`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "validate-only",
			Usage: "Parse and validate the plan without running it",
		},
	},
	Action: runChain,
}

var matchCommand = &cli.Command{
	Name:      "match",
	Usage:     "Find the items of a repeated list",
	ArgsUsage: "<snapshot.xml>",
	Description: `Detect the list container and score its items by template, skeleton,
field and geometry similarity.

Examples:
  uiresolve match --all feed.xml
  uiresolve match --container-path '/hierarchy/android.widget.FrameLayout[1]/androidx.recyclerview.widget.RecyclerView[1]' feed.xml
  uiresolve match --request request.yaml feed.xml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "request",
			Usage: "YAML file with the full structure request",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Return every passing item instead of the best one",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Score with skeleton and fields only",
		},
		&cli.StringFlag{
			Name:  "container-path",
			Usage: "Absolute path of the list container",
		},
		&cli.StringFlag{
			Name:  "template-path",
			Usage: "Absolute path of the item others are compared with",
		},
	},
	Action: runMatch,
}

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "Summarize a snapshot",
	ArgsUsage: "<snapshot.xml>",
	Description: `Print node counts, the detected screen size, the container the
detector would pick and the largest scrollable node.

With --at, also print the node a tap at that point would land on: the
deepest clickable node containing it, else the deepest node.

Examples:
  uiresolve inspect screen.xml
  uiresolve inspect --path '/hierarchy/android.widget.FrameLayout[1]' screen.xml
  uiresolve inspect --at 540,1200 screen.xml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "path",
			Usage: "Also print the node at this absolute path",
		},
		&cli.StringFlag{
			Name:  "at",
			Usage: "Also print the node hit by a tap at `X,Y`",
		},
	},
	Action: runInspect,
}

func runResolve(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one snapshot file is required")
	}
	snapshot, err := readSnapshot(c.Args().First())
	if err != nil {
		return err
	}

	s, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()
	rc := s.cfg.Resolver()

	if path := c.String("targets-file"); path != "" {
		var targets []resolver.Target
		if err := readYAML(path, &targets); err != nil {
			return err
		}
		workers := s.cfg.Workers
		if c.IsSet("workers") {
			workers = c.Int("workers")
		}
		results := s.resolver.ResolveBatch(context.Background(), snapshot, targets, rc, workers)
		if err := writeJSON(c, results); err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != nil {
				return fmt.Errorf("%s: %w", r.Name, r.Err)
			}
		}
		return nil
	}

	var spec selector.Spec
	switch {
	case c.String("target") != "":
		if err := yaml.Unmarshal([]byte(c.String("target")), &spec); err != nil {
			return fmt.Errorf("parse --target: %w", err)
		}
	case c.String("target-file") != "":
		if err := readYAML(c.String("target-file"), &spec); err != nil {
			return err
		}
	default:
		return fmt.Errorf("one of --target, --target-file or --targets-file is required")
	}

	res, err := s.resolver.Resolve(snapshot, spec, rc)
	return report(c, res, err)
}

func runChain(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("a snapshot file and a plan file are required")
	}
	plan, err := chain.ParsePlanFile(c.Args().Get(1))
	if err != nil {
		return err
	}

	if c.Bool("validate-only") {
		v := plan.Validate()
		if err := v.Err(); err != nil {
			return err
		}
		return writeJSON(c, map[string]interface{}{
			"valid":    true,
			"variants": len(plan.Variants),
			"order":    variantIDs(plan.Order()),
		})
	}

	snapshot, err := readSnapshot(c.Args().First())
	if err != nil {
		return err
	}
	s, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	res, err := s.resolver.ResolvePlan(snapshot, plan, s.cfg.Resolver())
	return report(c, res, err)
}

func runMatch(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one snapshot file is required")
	}
	snapshot, err := readSnapshot(c.Args().First())
	if err != nil {
		return err
	}
	s, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	req := resolver.StructureRequest{MinConfidence: s.cfg.MinConfidence}
	if path := c.String("request"); path != "" {
		if err := readYAML(path, &req); err != nil {
			return err
		}
	}
	if req.Mode == "" {
		req.Mode = s.cfg.Resolver().Mode
	}
	if _, err := scoring.ParseMode(string(req.Mode)); err != nil {
		return err
	}
	if c.Bool("all") {
		req.WantAll = true
	}
	if c.Bool("strict") {
		req.StrictSkeletonOnly = true
	}
	if p := c.String("container-path"); p != "" {
		req.Hints = container.Hints{Path: p}
	}
	if p := c.String("template-path"); p != "" {
		req.TemplatePath = p
	}

	res, err := s.resolver.MatchStructure(snapshot, req)
	return report(c, res, err)
}

func runInspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one snapshot file is required")
	}
	snapshot, err := readSnapshot(c.Args().First())
	if err != nil {
		return err
	}
	s, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	tree, err := s.resolver.Cache().Tree(snapshot, s.cfg.Resolver().Screen)
	if err != nil {
		return err
	}

	out := inspection{Summary: tree.Summarize()}
	if scope, ok := container.New(s.cfg.Container).PickList(tree); ok {
		out.List = scope
	}
	if p := c.String("path"); p != "" {
		id, ok := tree.ByPath(p)
		if !ok {
			return fmt.Errorf("no node at %s", p)
		}
		out.Node = tree.Node(id)
	}
	if id, ok := tree.LargestScrollable(); ok {
		out.Scroller = tree.Node(id)
	}
	if at := c.String("at"); at != "" {
		p, err := parsePoint(at)
		if err != nil {
			return err
		}
		id, ok := tree.DeepestContaining(p, func(n *hierarchy.Node) bool { return n.Clickable })
		if !ok {
			id, ok = tree.DeepestContaining(p, nil)
		}
		if !ok {
			return fmt.Errorf("no node contains %s", at)
		}
		out.Hit = tree.Node(id)
	}
	return writeJSON(c, out)
}

// parsePoint reads "x,y".
func parsePoint(s string) (core.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return core.Point{}, fmt.Errorf("invalid point %q, want X,Y", s)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil {
		return core.Point{}, fmt.Errorf("invalid point %q, want X,Y", s)
	}
	return core.Point{X: x, Y: y}, nil
}

// inspection is the output of the inspect command.
type inspection struct {
	hierarchy.Summary
	List     *container.Scope `json:"list,omitempty"`
	Node     *hierarchy.Node  `json:"node,omitempty"`
	Scroller *hierarchy.Node  `json:"scroller,omitempty"`
	Hit      *hierarchy.Node  `json:"hit,omitempty"`
}

func readSnapshot(path string) (string, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided snapshot
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}
	return string(data), nil
}

func readYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided file
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func variantIDs(vs []*chain.Variant) []string {
	ids := make([]string, len(vs))
	for i, v := range vs {
		ids[i] = v.ID
	}
	return ids
}
