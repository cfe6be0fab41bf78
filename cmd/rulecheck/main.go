// Command rulecheck validates XML documents against a ruleset file and
// exits according to a conformance policy.
//
// Exit codes: 0 when the policy allows every document, 1 when it rejects
// at least one, 2 on usage or configuration errors.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/liamcoop/rulecheck/engine"
	"github.com/liamcoop/rulecheck/internal/logger"
	"github.com/liamcoop/rulecheck/policy"
	"github.com/liamcoop/rulecheck/rules"
	"github.com/liamcoop/rulecheck/validation"
)

const (
	exitConformant    = 0
	exitNonConformant = 1
	exitUsage         = 2
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// report is the result for one document.
type report struct {
	File       string              `json:"file"`
	Conformant bool                `json:"conformant"`
	Summary    validation.Summary  `json:"summary"`
	Errors     []*validation.Error `json:"errors"`
}

func run(args []string, out, errOut io.Writer) int {
	code := exitConformant

	app := &cli.App{
		Name:      "rulecheck",
		Usage:     "validate XML documents against a ruleset",
		UsageText: "rulecheck -ruleset FILE [-policy EXPR] [-format text|json] DOC.xml...",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ruleset", Usage: "ruleset JSON file", Required: true},
			&cli.StringFlag{Name: "policy", Usage: "CEL conformance policy", Value: policy.DefaultExpression},
			&cli.StringFlag{Name: "format", Usage: "report format: text or json", Value: "text"},
			&cli.DurationFlag{Name: "regex-timeout", Usage: "bound on a single regex match, 0 for none"},
		},
		HideHelpCommand: true,
		ExitErrHandler:  func(*cli.Context, error) {},
		Action: func(c *cli.Context) error {
			var err error
			code, err = check(c, out)
			return err
		},
	}

	if err := app.Run(args); err != nil {
		fmt.Fprintf(errOut, "rulecheck: %v\n", err)
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			return exit.ExitCode()
		}
		return exitUsage
	}
	return code
}

func check(c *cli.Context, out io.Writer) (int, error) {
	format := c.String("format")
	if format != "text" && format != "json" {
		return exitUsage, cli.Exit(fmt.Sprintf("unknown format %q", format), exitUsage)
	}
	if c.NArg() == 0 {
		return exitUsage, cli.Exit("at least one document is required", exitUsage)
	}

	p, err := policy.Compile(c.String("policy"))
	if err != nil {
		return exitUsage, cli.Exit(fmt.Sprintf("invalid policy: %v", err), exitUsage)
	}

	en, err := loadRuleset(c.String("ruleset"), c.Duration("regex-timeout"))
	if err != nil {
		return exitUsage, cli.Exit(err.Error(), exitUsage)
	}

	code := exitConformant
	reports := make([]report, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return exitUsage, cli.Exit(err.Error(), exitUsage)
		}

		log, err := en.Validate(raw, nil)
		if err != nil {
			return exitUsage, cli.Exit(fmt.Sprintf("%s: %v", path, err), exitUsage)
		}
		allowed, err := p.Allows(log)
		if err != nil {
			return exitUsage, cli.Exit(fmt.Sprintf("policy evaluation failed: %v", err), exitUsage)
		}
		if !allowed {
			code = exitNonConformant
		}

		logger.Debug("document checked", "file", path, "conformant", allowed, "entries", log.Len())
		reports = append(reports, report{
			File:       path,
			Conformant: allowed,
			Summary:    log.Summarize(),
			Errors:     log.Entries(),
		})
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return exitUsage, err
		}
		return code, nil
	}
	writeText(out, reports)
	return code, nil
}

// loadRuleset compiles the ruleset file into an engine holding it as its
// only active ruleset.
func loadRuleset(path string, regexTimeout time.Duration) (*engine.Engine, error) {
	definition, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var opts []rules.Option
	if regexTimeout > 0 {
		opts = append(opts, rules.WithRegexTimeout(regexTimeout))
	}
	en, err := engine.NewEngine(engine.NewInMemoryRulesetStore(), engine.WithRuleOptions(opts...))
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	err = en.AddRuleset(&engine.RulesetRecord{
		ID:         name,
		Name:       strings.TrimSuffix(name, filepath.Ext(name)),
		Definition: string(definition),
		Active:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return en, nil
}

func writeText(out io.Writer, reports []report) {
	for _, r := range reports {
		verdict := "conformant"
		if !r.Conformant {
			verdict = "not conformant"
		}
		fmt.Fprintf(out, "%s: %s (%d errors, %d warnings)\n", r.File, verdict, r.Summary.Errors, r.Summary.Warnings)

		for _, e := range r.Errors {
			fmt.Fprintf(out, "  %s %s", e.Status, e.Name)
			if e.LineNumber > 0 {
				fmt.Fprintf(out, " (line %d)", e.LineNumber)
			}
			fmt.Fprintf(out, ": %s\n", e.Info)
			if e.Help != "" {
				fmt.Fprintf(out, "    %s\n", e.Help)
			}
		}
	}
}
